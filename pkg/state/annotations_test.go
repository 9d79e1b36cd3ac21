package state

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cpuview/cpuview/pkg/settings"
)

func TestEffectiveComment(t *testing.T) {
	s := settings.Default()
	an := Annotations{}.SetUserComment("0x10", "entry")
	raw := "call 0x401020 # 0x401020 <puts@plt>"

	if got := an.Effective("0x10", raw, s); got != "entry" {
		t.Errorf("user comment not preferred: %q", got)
	}
	if got := an.Effective("0x20", raw, s); got != "0x401020 <puts@plt>" {
		t.Errorf("inferred comment = %q", got)
	}
	s.ShowGdbComments = false
	if got := an.Effective("0x20", raw, s); got != "" {
		t.Errorf("inferred comment shown when disabled: %q", got)
	}
	if got := an.Effective("0x10", raw, s); got != "entry" {
		t.Errorf("user comment hidden with inferred comments disabled: %q", got)
	}
}

func TestSetUserCommentDeletes(t *testing.T) {
	an := Annotations{}.SetUserComment("0x10", "x")
	cleared := an.SetUserComment("0x10", "")
	if _, ok := cleared.UserComment("0x10"); ok || cleared.Len() != 0 {
		t.Fatal("empty comment stored")
	}
	if _, ok := an.UserComment("0x10"); !ok {
		t.Fatal("receiver modified")
	}
}

func TestLoadReplaces(t *testing.T) {
	an := Annotations{}.SetUserComment("0x10", "old")
	an, errs := an.Load(map[string]string{"0x0020": "new", "nope": "x", "0x30": " "})
	if len(errs) != 1 {
		t.Fatalf("errs = %v", errs)
	}
	if _, ok := an.UserComment("0x10"); ok {
		t.Fatal("load merged instead of replacing")
	}
	if c, _ := an.UserComment("0x20"); c != "new" || an.Len() != 1 {
		t.Fatalf("loaded comments: %d, 0x20=%q", an.Len(), c)
	}
}

func TestLogBounded(t *testing.T) {
	var l Log
	for i := 0; i < MaxLogEntries+10; i++ {
		l = l.Append(LogEntry{Time: time.Unix(int64(i), 0), Level: logrus.InfoLevel})
	}
	if l.Len() != MaxLogEntries {
		t.Fatalf("len = %d", l.Len())
	}
	if first := l.Entries()[0]; first.Time.Unix() != 10 {
		t.Fatalf("oldest entries not dropped, first = %d", first.Time.Unix())
	}
	if tail := l.Tail(3); len(tail) != 3 || tail[2].Time.Unix() != MaxLogEntries+9 {
		t.Fatalf("tail = %v", tail)
	}
}

func TestModelReset(t *testing.T) {
	m := New(settings.Default())
	m.Selection = m.Selection.Select("0x10")
	m.History = m.History.Push("0x10")
	m.Annotations = m.Annotations.SetUserComment("0x10", "c")
	m.Patches, _ = m.Patches.Load([]string{"0x10"})
	m.Log = m.Log.Append(LogEntry{Message: "kept"})
	m.Settings.SwapArguments = false
	m.Session, _ = m.Session.SetStatus(Paused)

	r := m.Reset()
	if r.Selection.Len() != 0 || len(r.History.Past()) != 0 || r.Annotations.Len() != 0 || r.Patches.Len() != 0 {
		t.Fatal("reset kept per-target state")
	}
	if r.Session.Status != Idle {
		t.Fatalf("status after reset: %v", r.Session.Status)
	}
	if r.Log.Len() != 1 || r.Settings.SwapArguments {
		t.Fatal("reset dropped settings or log")
	}
}
