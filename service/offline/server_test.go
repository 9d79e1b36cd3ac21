package offline

import (
	"context"
	"errors"
	"io/ioutil"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/service"
	"github.com/cpuview/cpuview/service/api"
	"github.com/cpuview/cpuview/service/rest"
)

// testImage is a small amd64 program loaded at DefaultBase:
//
//	0x400000  55              push %rbp
//	0x400001  48 89 e5        mov %rsp,%rbp
//	0x400004  e8 02 00 00 00  call 0x40000b
//	0x400009  5d              pop %rbp
//	0x40000a  c3              ret
//	0x40000b  90              nop
//	0x40000c  cc              int3
//	0x40000d  c3              ret
var testImage = []byte{
	0x55,
	0x48, 0x89, 0xe5,
	0xe8, 0x02, 0x00, 0x00, 0x00,
	0x5d,
	0xc3,
	0x90,
	0xcc,
	0xc3,
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.bin")
	if err := ioutil.WriteFile(path, testImage, 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func startServer(t *testing.T, cfg Config) (*Server, *rest.Client) {
	t.Helper()
	if cfg.DBDir == "" {
		cfg.DBDir = t.TempDir()
	}
	s, err := NewServer(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.hub.close()
		ts.Close()
	})
	return s, rest.NewClient(ts.URL + APIRoot)
}

func byteAt(s *Server, addr uint64) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img.Read(addr, 1)[0]
}

func machineState(s *Server) (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.ip, s.machine.status
}

func TestDisassembleResolvesBranches(t *testing.T) {
	img := newImage("test", DefaultBase, DefaultBase, 64, testImage)
	insns := Disassemble(img, DefaultBase, 100, settings.FlavorATT)
	if len(insns) != 8 {
		t.Fatalf("got %d instructions, want 8", len(insns))
	}
	var addrs []string
	for _, in := range insns {
		addrs = append(addrs, in.Address)
	}
	want := []string{"0x400000", "0x400001", "0x400004", "0x400009", "0x40000a", "0x40000b", "0x40000c", "0x40000d"}
	if diff := cmp.Diff(want, addrs); diff != "" {
		t.Fatalf("addresses (-want +got):\n%s", diff)
	}
	call := insns[2]
	if call.Opcodes != "e8 02 00 00 00" {
		t.Fatalf("call opcodes %q", call.Opcodes)
	}
	if !strings.HasSuffix(call.Inst, " # 0x40000b") || !strings.Contains(call.Inst, "0x2") {
		t.Fatalf("call text %q", call.Inst)
	}
	if strings.Contains(insns[1].Inst, "#") {
		t.Fatalf("comment on a non-branch: %q", insns[1].Inst)
	}

	if got := Disassemble(img, 0x40000d, 10, settings.FlavorIntel); len(got) != 1 {
		t.Fatalf("listing past the end of the image: %v", got)
	}
}

func TestMachineStepping(t *testing.T) {
	img := newImage("test", DefaultBase, DefaultBase, 64, testImage)
	m := newMachine(img)
	m.step(false)
	m.step(false)
	if m.ip != 0x400004 {
		t.Fatalf("ip %#x after two steps", m.ip)
	}
	m.step(false)
	if m.ip != 0x40000b || len(m.stack) != 1 {
		t.Fatalf("step into call: ip %#x stack %v", m.ip, m.stack)
	}
	m.run()
	if m.ip != 0x40000c || m.status != statusPaused {
		t.Fatalf("run stopped at %#x (%s)", m.ip, m.status)
	}
	m.step(false)
	m.step(false)
	if m.ip != 0x400009 {
		t.Fatalf("ret went to %#x", m.ip)
	}
	m.step(false)
	m.step(false)
	if m.status != statusExited {
		t.Fatalf("status %s after the last ret", m.status)
	}

	m = newMachine(img)
	m.ip = 0x400004
	m.step(true)
	if m.ip != 0x400009 || len(m.stack) != 0 {
		t.Fatalf("step over call: ip %#x stack %v", m.ip, m.stack)
	}

	regs := m.registers()
	if regs[16].Number != "16" || regs[16].Value != "0x400009" {
		t.Fatalf("rip register %+v", regs[16])
	}
}

func TestServerSession(t *testing.T) {
	path := writeTestImage(t)
	s, c := startServer(t, Config{Target: path})
	ctx := context.Background()

	if _, err := c.Disassemble(ctx, api.DisassembleIn{Start: "0x400000"}); err == nil {
		t.Fatal("disassemble without a target")
	}

	out, err := c.LoadSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Path != path || out.Metadata.ImageBase != "0x400000" || out.Metadata.Arch != "i386:x86-64" || len(out.Patches) != 0 {
		t.Fatalf("load: %+v", out)
	}

	dis, err := c.Disassemble(ctx, api.DisassembleIn{Start: "0x3fff00", Count: 3, Seq: 7})
	if err != nil {
		t.Fatal(err)
	}
	if dis.Seq != 7 || len(dis.Instructions) != 3 || dis.Instructions[0].Address != "0x400000" {
		t.Fatalf("disassemble: %+v", dis)
	}

	w, err := c.WriteMemory(ctx, api.NewWriteMemoryIn("0x400001", []byte{0x90, 0x90, 0x90}))
	if err != nil || w.Status != api.StatusWritten {
		t.Fatalf("write: %+v %v", w, err)
	}
	_, err = c.WriteMemory(ctx, api.NewWriteMemoryIn("0x40000d", []byte{0x90, 0x90}))
	var serr *api.ServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("write past the end: %v", err)
	}
	if err := c.SaveComment(ctx, "0x400004", "call helper"); err != nil {
		t.Fatal(err)
	}

	out, err = c.LoadSession(ctx, filepath.Base(path))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"0x400001", "0x400002", "0x400003"}, out.Patches); diff != "" {
		t.Fatalf("persisted patches (-want +got):\n%s", diff)
	}
	if out.Comments["0x400004"] != "call helper" {
		t.Fatalf("persisted comments %v", out.Comments)
	}
	if b := byteAt(s, 0x400001); b != 0x90 {
		t.Fatalf("patch not reapplied: %#x", b)
	}

	r, err := c.RevertMemory(ctx, "0x400002")
	if err != nil || r.Status != api.StatusReverted {
		t.Fatalf("revert: %+v %v", r, err)
	}
	if b := byteAt(s, 0x400002); b != 0x89 {
		t.Fatalf("revert restored %#x", b)
	}
	if _, err := c.RevertMemory(ctx, "0x400002"); !errors.As(err, &serr) {
		t.Fatalf("second revert: %v", err)
	}

	st, err := c.ResetDatabase(ctx, true)
	if err != nil || st.DeletedCount != 1 {
		t.Fatalf("reset all: %+v %v", st, err)
	}
	if b := byteAt(s, 0x400001); b != 0x48 {
		t.Fatalf("reset left %#x", b)
	}
}

func TestServerSettingsAndControl(t *testing.T) {
	path := writeTestImage(t)
	dbdir := t.TempDir()
	s, c := startServer(t, Config{Target: path, DBDir: dbdir})
	ctx := context.Background()

	if err := c.SaveSetting(ctx, settings.KeyNumberFormat, "roman"); err == nil {
		t.Fatal("invalid setting saved")
	}
	if err := c.SaveSetting(ctx, settings.KeyNumberFormat, "dec"); err != nil {
		t.Fatal(err)
	}
	_, c2 := startServer(t, Config{Target: path, DBDir: dbdir})
	kv, err := c2.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if kv[settings.KeyNumberFormat] != "dec" || kv[settings.KeyListingCase] != "upper" {
		t.Fatalf("settings %v", kv)
	}

	if err := c.Control(ctx, service.StepInto); err == nil {
		t.Fatal("step without a target")
	}
	if _, err := c.LoadSession(ctx, ""); err != nil {
		t.Fatal(err)
	}
	for _, cmd := range []service.ControlCommand{service.StepInto, service.StepInto, service.StepOver} {
		if err := c.Control(ctx, cmd); err != nil {
			t.Fatal(err)
		}
	}
	if ip, _ := machineState(s); ip != 0x400009 {
		t.Fatalf("ip %#x", ip)
	}
	if err := c.Control(ctx, service.Run); err != nil {
		t.Fatal(err)
	}
	if _, status := machineState(s); status != statusExited {
		t.Fatalf("status %s after run", status)
	}
	if err := c.Control(ctx, service.Run); err == nil {
		t.Fatal("run after exit")
	}

	v, err := c.GetVersion(ctx)
	if err != nil || v == "" {
		t.Fatalf("version %q %v", v, err)
	}
	files, err := c.ListTargets(ctx)
	if err != nil || len(files) != 1 || files[0].Name != "prog.bin" || !files[0].Executable {
		t.Fatalf("targets %+v %v", files, err)
	}
}

func TestLoadMissingTarget(t *testing.T) {
	_, c := startServer(t, Config{})
	_, err := c.LoadSession(context.Background(), filepath.Join(os.TempDir(), "does-not-exist"))
	var serr *api.ServiceError
	if !errors.As(err, &serr) || serr.Details == "" {
		t.Fatalf("load of a missing file: %v", err)
	}
}
