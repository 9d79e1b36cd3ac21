package terminal

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cpuview/cpuview/pkg/state"
)

func (ft *FakeTerminal) ExecStarlark(starlarkProgram string) (outstr string, err error) {
	outfh, err := ioutil.TempFile("", "cmdtestout")
	if err != nil {
		ft.t.Fatalf("could not create temporary file: %v", err)
	}

	stdout, termstdout := os.Stdout, ft.Term.stdout
	os.Stdout, ft.Term.stdout = outfh, outfh
	ft.Term.starlarkEnv.Redirect(outfh)
	defer func() {
		os.Stdout, ft.Term.stdout = stdout, termstdout
		ft.Term.starlarkEnv.Redirect(termstdout)
		outfh.Close()
		outbs, err1 := ioutil.ReadFile(outfh.Name())
		if err1 != nil {
			ft.t.Fatalf("could not read temporary output file: %v", err)
		}
		outstr = string(outbs)
		if logCommandOutput {
			ft.t.Logf("command %q -> %q", starlarkProgram, outstr)
		}
		os.Remove(outfh.Name())
	}()
	_, err = ft.Term.starlarkEnv.Execute("<stdin>", starlarkProgram, "main", nil)
	return
}

func (ft *FakeTerminal) MustExecStarlark(starlarkProgram string) string {
	outstr, err := ft.ExecStarlark(starlarkProgram)
	if err != nil {
		ft.t.Errorf("output of %q: %q", starlarkProgram, outstr)
		ft.t.Fatalf("Error executing <%s>: %v", starlarkProgram, err)
	}
	return outstr
}

func TestStarlarkState(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		term.MustExec("load")
		term.WaitFor("entry point", pausedAt("0x400000"))
		term.MustExec("select 0x400004")

		out := term.MustExecStarlark(`
def main():
    s = cpuview_state()
    print(s["status"], s["ip"], s["anchor"])
    print(s["selection"])
    for row in s["window"]:
        if row["selected"]:
            print(row["address"], row["opcodes"])
    print(s["settings"]["listingCase"])
`)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		want := []string{
			"PAUSED 0x400000 0x400000",
			`["0x400004"]`,
			"0x400004 e8 02 00 00 00",
			"upper",
		}
		if len(lines) != len(want) {
			t.Fatalf("unexpected output %q", out)
		}
		for i := range want {
			if lines[i] != want[i] {
				t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
			}
		}
	})
}

func TestStarlarkCommandError(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		_, err := term.ExecStarlark(`
def main():
    cpuview_command("goto nowhere")
`)
		if err == nil || !strings.Contains(err.Error(), "invalid address") {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestSourceStarlark(t *testing.T) {
	withTestTerminal(t, func(term *FakeTerminal) {
		term.MustExec("load")
		term.WaitFor("entry point", pausedAt("0x400000"))

		path := filepath.Join(term.dir, "script.star")
		script := `
def command_mark(args):
    cpuview_command("select " + args)
    cpuview_command("comment marked")

def main():
    s = cpuview_state()
    print("ip", s["ip"], "window", len(s["window"]))
`
		if err := ioutil.WriteFile(path, []byte(script), 0644); err != nil {
			t.Fatal(err)
		}
		out := term.MustExec("source " + path)
		if !strings.Contains(out, "ip 0x400000 window 8") {
			t.Fatalf("script output %q", out)
		}
		term.MustExec("mark 0x400001")
		term.WaitFor("comment from script", func(m state.Model) bool {
			c, ok := m.Annotations.UserComment("0x400001")
			return ok && c == "marked"
		})
	})
}
