package cmds

import (
	"bytes"
	"strings"
	"testing"
)

func TestCommandTree(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := New(true)
	for _, name := range []string{"connect", "exec", "serve", "format", "version", "log"} {
		c, _, err := root.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Errorf("subcommand %q not found: %v", name, err)
		}
	}
	for _, name := range []string{"exec", "serve"} {
		c, _, _ := root.Find([]string{name})
		for _, flag := range []string{"listen", "base", "mode", "db-dir", "push-disassembly"} {
			if c.Flags().Lookup(flag) == nil {
				t.Errorf("%s has no --%s flag", name, flag)
			}
		}
	}
}

func TestConnectNeedsAddress(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := New(true)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"connect"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "you must provide an address") {
		t.Fatalf("unexpected error %v", err)
	}
}
