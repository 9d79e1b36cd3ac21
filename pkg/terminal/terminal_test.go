package terminal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cpuview/cpuview/pkg/config"
	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/pkg/state"
)

func TestCompleter(t *testing.T) {
	complete := DebugCommands().completer()
	tests := []struct {
		line string
		want []string
	}{
		{"ste", []string{"stepi"}},
		{"re", []string{"refresh", "regs", "resetdb", "revert"}},
		{"goto 0x", nil},
		{"zz", nil},
	}
	for _, tc := range tests {
		got := complete(tc.line)
		if len(got) == 0 {
			got = nil
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("completions of %q (-want +got):\n%s", tc.line, diff)
		}
	}
}

func TestValidColor(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{0, ansiRed},
		{ansiBlue, ansiBlue},
		{50, ansiRed},
		{ansiBrCyan, ansiBrCyan},
		{120, ansiRed},
	} {
		if got := validColor(tc.in, ansiRed); got != tc.want {
			t.Errorf("validColor(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func testModel() state.Model {
	m := state.New(settings.Default())
	m.Session.Status = state.Paused
	m.Session.Registers = []state.Register{{ID: "16", Name: "rip", Value: "0x401001"}}
	m.Session.Window = []state.Record{
		{Address: "0x401000", RawText: "push   %rbp", Opcodes: "55"},
		{Address: "0x401001", RawText: "mov    %rsp,%rbp", Opcodes: "48 89 e5"},
		{Address: "0x401004", RawText: "ret", Opcodes: "c3"},
	}
	m.Selection = m.Selection.Select("0x401004")
	m.Annotations = m.Annotations.SetUserComment("0x401000", "entry")
	return m
}

func TestPrintWindow(t *testing.T) {
	term := &Term{conf: &config.Config{}, dumb: true, rows: newRowCache(), width: 200}
	var buf bytes.Buffer
	term.printWindow(&buf, testModel())
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 rows, got:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[0], "    0x401000  55") || !strings.HasSuffix(lines[0], "; entry") {
		t.Errorf("first row %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "=>  0x401001  48 89 e5") {
		t.Errorf("instruction pointer row %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "  * 0x401004") {
		t.Errorf("selected row %q", lines[2])
	}
}

func TestPrintWindowTruncates(t *testing.T) {
	term := &Term{conf: &config.Config{}, dumb: true, rows: newRowCache(), width: 30}
	m := testModel()
	m.Annotations = m.Annotations.SetUserComment("0x401000", strings.Repeat("x", 100))
	var buf bytes.Buffer
	term.printWindow(&buf, m)
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	if len(first) != 30 || !strings.HasSuffix(first, "...") {
		t.Fatalf("row not truncated to the width: %q", first)
	}
}

func TestPrintWindowEmpty(t *testing.T) {
	term := &Term{conf: &config.Config{}, dumb: true, rows: newRowCache(), width: 80}
	var buf bytes.Buffer
	term.printWindow(&buf, state.New(settings.Default()))
	if buf.String() != "no instructions loaded\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestOpcodesColorModified(t *testing.T) {
	term := &Term{conf: &config.Config{ModifiedColor: ansiRed}}
	p, errs := state.Patches{}.Load([]string{"0x401002"})
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	rec := state.Record{Address: "0x401001", Opcodes: "48 89 e5"}
	want := "48 \033[31m89\033[0m e5"
	if got := term.opcodes(rec, p); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	term.dumb = true
	if got := term.opcodes(rec, p); got != "48 89 e5" {
		t.Fatalf("dumb terminal colored opcodes: %q", got)
	}
}
