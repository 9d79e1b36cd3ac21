package export

import (
	"testing"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/pkg/state"
)

func model() state.Model {
	s := settings.Default()
	s.ListingCase = settings.CaseLower
	s.SwapArguments = false
	m := state.New(s)
	m.Session, _ = m.Session.ReceiveWindow([]state.Record{
		{Address: "0x7f0000401000", RawText: "nop", Opcodes: "90 90"},
		{Address: "0x7f0000401002", RawText: "ret", Opcodes: "C3"},
		{Address: "0x7f0000401003", RawText: "call 0x10 # 0x401020 <puts@plt>", Opcodes: "e8 10 00 00 00"},
		{Address: "0x7f0000401008", RawText: "(bad)"},
	}, 0)
	m.Annotations = m.Annotations.SetUserComment("0x7f0000401002", "done")
	return m
}

func TestExportHex(t *testing.T) {
	m := model()
	targets := []address.Address{"0x7f0000401002", "0x7f0000401000"}
	tests := []struct {
		hex  settings.HexFormat
		want string
	}{
		{settings.HexRaw, "9090c3"},
		{settings.HexSpace, "90 90\nc3"},
		{settings.HexPrefix, "0x90 0x90\n0xc3"},
		{settings.HexPython, `\x90\x90\xc3`},
	}
	for _, tc := range tests {
		got := Export(m, Request{Targets: targets, Kind: KindHex, Hex: tc.hex})
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.hex, got, tc.want)
		}
	}
}

func TestExportKinds(t *testing.T) {
	m := model()
	all := []address.Address{"0x7f0000401003", "0x7f0000401002", "0x7f0000401000", "0x999"}
	tests := []struct {
		kind Kind
		want string
	}{
		{KindAddress, "0x7f0000401000\n0x7f0000401002\n0x7f0000401003"},
		{KindOffset, "0x401000\n0x401002\n0x401003"},
		{KindAsm, "nop\nret\ncall 0x401020"},
		{KindLine, "0x7f0000401000\t90 90\tnop\t\n" +
			"0x7f0000401002\tC3\tret\tdone\n" +
			"0x7f0000401003\te8 10 00 00 00\tcall 0x401020\t0x401020 <puts@plt>"},
	}
	for _, tc := range tests {
		if got := Export(m, Request{Targets: all, Kind: tc.kind}); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestExportDefaultsToFirstInstruction(t *testing.T) {
	m := model()
	if got := Export(m, Request{Kind: KindAddress}); got != "0x7f0000401000" {
		t.Fatalf("got %q", got)
	}
	if got := Export(state.New(settings.Default()), Request{Kind: KindAddress}); got != "" {
		t.Fatalf("empty window exported %q", got)
	}
}

func TestExportSkipsUnknownOpcodes(t *testing.T) {
	m := model()
	got := Export(m, Request{Targets: []address.Address{"0x7f0000401008", "0x7f0000401002"}, Kind: KindHex, Hex: settings.HexSpace})
	if got != "c3" {
		t.Fatalf("got %q", got)
	}
}

func TestBufferClipboard(t *testing.T) {
	var c Buffer
	var cb Clipboard = &c
	if err := cb.WriteText("abc"); err != nil {
		t.Fatal(err)
	}
	if c.Text() != "abc" {
		t.Fatalf("got %q", c.Text())
	}
}
