// Package state implements the debugging session state engine.
//
// Every component is a value type whose transitions return a new value and
// never modify the receiver, so a Model handed to presentation code is a
// stable snapshot. Transitions that require I/O return effects; executing
// them is the caller's job.
package state

import (
	"fmt"
	"strings"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/settings"
)

// Record is one disassembled instruction.
type Record struct {
	Address address.Address
	// RawText is the instruction as produced by the disassembler, including
	// any inferred comment.
	RawText string
	// Opcodes holds the instruction bytes as space separated hex pairs.
	// Empty when unknown.
	Opcodes string
}

// Len returns the byte length of the instruction, 1 if unknown.
func (r Record) Len() int {
	if n := len(strings.Fields(r.Opcodes)); n > 0 {
		return n
	}
	return 1
}

// ByteAddresses returns the address of every byte of the instruction.
func (r Record) ByteAddresses() []address.Address {
	n := r.Len()
	out := make([]address.Address, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, address.Offset(r.Address, int64(i)))
	}
	return out
}

// Status is the execution state of the target.
type Status uint8

const (
	Idle Status = iota
	Running
	Paused
	Exited
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	case Exited:
		return "EXITED"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus parses the status names used on the push channel.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IDLE":
		return Idle, nil
	case "RUNNING":
		return Running, nil
	case "PAUSED", "STOPPED":
		return Paused, nil
	case "EXITED":
		return Exited, nil
	}
	return Idle, fmt.Errorf("unknown status %q", s)
}

// Register is one register value reported by the backend. ID is the
// backend's register number. Name may be empty, in which case it is looked
// up in the session's register name table.
type Register struct {
	ID    string
	Name  string
	Value string
}

// Progress is the last progress report of a long running backend operation.
type Progress struct {
	Message string
	Percent int
	Show    bool
}

// Target describes the loaded target.
type Target struct {
	Path      string
	PID       int
	Arch      string
	ImageBase address.Address
}

// Model aggregates the whole client side state.
type Model struct {
	Target      Target
	Session     Session
	Selection   Selection
	History     History
	Patches     Patches
	Annotations Annotations
	Settings    settings.Settings
	Log         Log
}

// New returns an empty model using s as display settings.
func New(s settings.Settings) Model {
	return Model{Settings: s}
}

// Reset returns the model for a freshly loaded target. Settings and the
// system log survive, everything else is cleared.
func (m Model) Reset() Model {
	return Model{
		Session:  m.Session.Reset(),
		Settings: m.Settings,
		Log:      m.Log,
		Patches:  m.Patches.Reset(),
	}
}

// EffectiveComment returns the comment displayed for rec.
func (m Model) EffectiveComment(rec Record) string {
	return m.Annotations.Effective(rec.Address, rec.RawText, m.Settings)
}
