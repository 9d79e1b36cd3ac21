package state

import (
	"time"

	"github.com/sirupsen/logrus"
)

// MaxLogEntries bounds the system log. The oldest entries are dropped.
const MaxLogEntries = 2000

// LogEntry is one line of the system log.
type LogEntry struct {
	Time    time.Time
	Level   logrus.Level
	Message string
}

// Log is the bounded system log shown to the user.
type Log struct {
	entries []LogEntry
}

// Append adds e, dropping the oldest entry when the log is full.
func (l Log) Append(e LogEntry) Log {
	entries := l.entries
	if len(entries) >= MaxLogEntries {
		entries = entries[len(entries)-MaxLogEntries+1:]
	}
	return Log{entries: append(entries[:len(entries):len(entries)], e)}
}

// Entries returns a copy of the log, oldest first.
func (l Log) Entries() []LogEntry {
	return append([]LogEntry(nil), l.entries...)
}

// Tail returns the last n entries.
func (l Log) Tail(n int) []LogEntry {
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	return append([]LogEntry(nil), l.entries[len(l.entries)-n:]...)
}

func (l Log) Len() int {
	return len(l.entries)
}
