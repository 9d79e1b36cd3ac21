package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cpuview/cpuview/pkg/settings"
)

func TestDefaultConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFile)
	if err := createDefaultConfig(path); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.BackendURL() != DefaultBackend || c.Count() != DefaultDisassembleCount || !c.UseSystemClipboard() {
		t.Fatalf("defaults: %+v", c)
	}
	s, errs := c.DisplaySettings()
	if len(errs) != 0 || s != settings.Default() {
		t.Fatalf("settings %+v %v", s, errs)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFile)
	in := &Config{
		Backend:          "http://10.0.0.2:8000/api",
		Aliases:          map[string][]string{"goto": {"g"}},
		Settings:         map[string]string{settings.KeyListingCase: "lower", settings.KeyNumberFormat: "octal"},
		DisassembleCount: 40,
		Clipboard:        ClipboardNone,
	}
	if err := SaveConfigFile(in, path); err != nil {
		t.Fatal(err)
	}
	out, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
	if out.UseSystemClipboard() || out.Count() != 40 {
		t.Fatalf("loaded %+v", out)
	}
	s, errs := out.DisplaySettings()
	if len(errs) != 1 {
		t.Fatalf("expected the invalid number format to be reported, got %v", errs)
	}
	if s.ListingCase != settings.CaseLower || s.NumberFormat != settings.NumberAuto {
		t.Fatalf("settings %+v", s)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfigFile(filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatal("missing file loaded")
	}
	bad := filepath.Join(dir, "bad.yml")
	if err := ioutil.WriteFile(bad, []byte("aliases: [\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(bad); err == nil {
		t.Fatal("malformed file loaded")
	}
	if _, err := os.Stat(bad); err != nil {
		t.Fatal(err)
	}
}
