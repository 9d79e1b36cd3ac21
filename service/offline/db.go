package offline

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	dbExt        = ".yml"
	settingsFile = "settings.yml"
)

// Patch is a written byte and the value it replaced.
type Patch struct {
	Original byte `yaml:"original"`
	Value    byte `yaml:"value"`
}

// Record is the persisted analysis of one target.
type Record struct {
	Target   string            `yaml:"target"`
	Comments map[string]string `yaml:"comments,omitempty"`
	// Patches is keyed by byte address in canonical form.
	Patches map[string]Patch `yaml:"patches,omitempty"`
}

// PatchAddresses returns the patched addresses in address order.
func (r *Record) PatchAddresses() []string {
	addrs := make([]string, 0, len(r.Patches))
	for a := range r.Patches {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		if len(addrs[i]) != len(addrs[j]) {
			return len(addrs[i]) < len(addrs[j])
		}
		return addrs[i] < addrs[j]
	})
	return addrs
}

// Database stores one YAML file per target, plus the settings file, in a
// directory.
type Database struct {
	dir string
}

// OpenDatabase returns the database in dir, creating the directory.
func OpenDatabase(dir string) (*Database, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &Database{dir: dir}, nil
}

func (db *Database) recordPath(target string) string {
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	sum := sha1.Sum([]byte(abs))
	return filepath.Join(db.dir, filepath.Base(target)+"-"+hex.EncodeToString(sum[:4])+dbExt)
}

// Load returns the record of target, empty if there is none.
func (db *Database) Load(target string) (*Record, error) {
	r := &Record{Target: target}
	buf, err := ioutil.ReadFile(db.recordPath(target))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(buf, r); err != nil {
		return nil, fmt.Errorf("unable to decode database of %s: %v", target, err)
	}
	r.Target = target
	return r, nil
}

// Save writes r. A record with nothing in it removes the file.
func (db *Database) Save(r *Record) error {
	path := db.recordPath(r.Target)
	if len(r.Comments) == 0 && len(r.Patches) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	out, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, out, 0600)
}

// Reset deletes the record of target.
func (db *Database) Reset(target string) error {
	return db.Save(&Record{Target: target})
}

// ResetAll deletes every record and returns how many there were.
func (db *Database) ResetAll() (int, error) {
	entries, err := ioutil.ReadDir(db.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || e.Name() == settingsFile || !strings.HasSuffix(e.Name(), dbExt) {
			continue
		}
		if err := os.Remove(filepath.Join(db.dir, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// LoadSettings returns the saved settings.
func (db *Database) LoadSettings() (map[string]string, error) {
	m := map[string]string{}
	buf, err := ioutil.ReadFile(filepath.Join(db.dir, settingsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %v", err)
	}
	return m, nil
}

// SaveSettings writes the settings file.
func (db *Database) SaveSettings(m map[string]string) error {
	out, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filepath.Join(db.dir, settingsFile), out, 0600)
}
