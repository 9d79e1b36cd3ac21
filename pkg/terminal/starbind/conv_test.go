package starbind

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.starlark.net/starlark"
)

type fakeContext struct {
	calls    []string
	commands map[string]func(args string) error
	state    map[string]interface{}
}

func (c *fakeContext) CallCommand(cmdstr string) error {
	c.calls = append(c.calls, cmdstr)
	if cmdstr == "fail" {
		return errors.New("command failed")
	}
	return nil
}

func (c *fakeContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	if c.commands == nil {
		c.commands = map[string]func(args string) error{}
	}
	c.commands[name] = fn
}

func (c *fakeContext) State() map[string]interface{} { return c.state }

func TestConv(t *testing.T) {
	v := toStarlarkValue(map[string]interface{}{
		"ip":       "0x401000",
		"paused":   true,
		"count":    3,
		"selected": []string{"0x401000", "0x401001"},
		"regs":     map[string]string{"rip": "0x401000"},
		"none":     nil,
	})
	got := v.String()
	want := `{"count": 3, "ip": "0x401000", "none": None, "paused": True, "regs": {"rip": "0x401000"}, "selected": ["0x401000", "0x401001"]}`
	if got != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}

	if _, err := stringArgs("f", starlark.Tuple{starlark.String("a"), starlark.MakeInt(1)}); err == nil {
		t.Fatal("non-string argument accepted")
	}
}

func TestExecute(t *testing.T) {
	ctx := &fakeContext{state: map[string]interface{}{"ip": "0x401000"}}
	var out strings.Builder
	env := New(ctx, &out)

	script := `
def command_mark(args):
    "marks the instruction pointer"
    cpuview_command("goto", args)

def command_twice(a, b):
    cpuview_command("goto", a)
    cpuview_command("goto", b)

def main():
    s = cpuview_state()
    cpuview_command("goto", s["ip"])
    print("at", s["ip"])
`
	if _, err := env.Execute("test.star", script, "main", nil); err != nil {
		t.Fatal(err)
	}
	if out.String() != "at 0x401000\n" {
		t.Fatalf("output %q", out.String())
	}
	if err := ctx.commands["mark"]("0x10"); err != nil {
		t.Fatal(err)
	}
	if err := ctx.commands["twice"](`"0x1", "0x2"`); err != nil {
		t.Fatal(err)
	}
	want := []string{"goto 0x401000", "goto 0x10", "goto 0x1", "goto 0x2"}
	if strings.Join(ctx.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls %q", ctx.calls)
	}

	_, err := env.Execute("fail.star", `cpuview_command("fail")`, "", nil)
	if err == nil || !strings.Contains(err.Error(), "command failed") {
		t.Fatalf("error %v", err)
	}
}

func TestFileAndHelpBuiltins(t *testing.T) {
	var out strings.Builder
	env := New(&fakeContext{}, &out)
	path := filepath.Join(t.TempDir(), "notes.txt")

	script := `
def main(path):
    write_file(path, "0x401000 entry")
    print(read_file(path))
    help()
    help(cpuview_state)
`
	if _, err := env.Execute("files.star", script, "main", []interface{}{path}); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"0x401000 entry\n", "Available builtins:\n\tcpuview_command\n", "cpuview_state()\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}

	_, err := env.Execute("bad.star", `read_file("a", "b")`, "", nil)
	if err == nil || !strings.Contains(err.Error(), "wrong number of arguments") {
		t.Fatalf("error %v", err)
	}
}
