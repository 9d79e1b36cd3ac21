package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cpuview/cpuview/pkg/address"
)

// Status values a backend returns on success.
const (
	StatusWritten  = "written"
	StatusReverted = "reverted"
)

var (
	// ErrUnknownCommand is returned when confirming a command that is not
	// pending.
	ErrUnknownCommand = errors.New("unknown patch command")
	// ErrNotConfirmed is wrapped by every CommandError.
	ErrNotConfirmed = errors.New("patch not confirmed")
	// ErrEmptySelection is returned by PlanPatch when nothing is selected.
	ErrEmptySelection = errors.New("no instruction selected")
	// ErrEmptyPatch is returned by PlanPatch for an explicit edit without
	// bytes.
	ErrEmptyPatch = errors.New("no bytes to write")
)

// CommandError reports a write or revert the backend did not confirm.
type CommandError struct {
	ID      uint64
	Address address.Address
	Status  string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("patch at %s failed: %s", e.Address, e.Message)
	}
	return fmt.Sprintf("patch at %s not confirmed (status %q)", e.Address, e.Status)
}

func (e *CommandError) Unwrap() error { return ErrNotConfirmed }

type commandKind uint8

const (
	cmdWrite commandKind = iota
	cmdRevert
)

type pendingCommand struct {
	kind  commandKind
	start address.Address
	n     int
}

// WriteCommand is a write waiting for confirmation.
type WriteCommand struct {
	ID    uint64
	Start address.Address
	Data  []byte
}

// RevertCommand is a single byte revert waiting for confirmation.
type RevertCommand struct {
	ID      uint64
	Address address.Address
}

// Patches tracks which bytes of the target differ from the original file.
// Writes and reverts are two-phase: Begin registers a pending command,
// Confirm applies it only if the backend's response carries the success
// sentinel.
type Patches struct {
	modified map[address.Address]bool
	pending  map[uint64]pendingCommand
	nextID   uint64
}

func (p Patches) cloneModified() map[address.Address]bool {
	m := make(map[address.Address]bool, len(p.modified))
	for k := range p.modified {
		m[k] = true
	}
	return m
}

func (p Patches) clonePending() map[uint64]pendingCommand {
	m := make(map[uint64]pendingCommand, len(p.pending))
	for k, v := range p.pending {
		m[k] = v
	}
	return m
}

// Reset forgets every modified byte and pending command. Command IDs keep
// increasing so confirmations of forgotten commands are rejected.
func (p Patches) Reset() Patches {
	return Patches{nextID: p.nextID}
}

// Load replaces the modified set with addrs, as returned by a session load.
// Addresses that cannot be parsed are skipped and reported.
func (p Patches) Load(addrs []string) (Patches, []error) {
	var errs []error
	m := make(map[address.Address]bool, len(addrs))
	for _, s := range addrs {
		a, err := address.Normalize(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m[a] = true
	}
	return Patches{modified: m, pending: p.pending, nextID: p.nextID}, errs
}

// BeginWrite registers a write of data at start. No byte is marked until the
// write is confirmed.
func (p Patches) BeginWrite(start address.Address, data []byte) (Patches, WriteCommand) {
	p.nextID++
	p.pending = p.clonePending()
	p.pending[p.nextID] = pendingCommand{kind: cmdWrite, start: start, n: len(data)}
	return p, WriteCommand{ID: p.nextID, Start: start, Data: append([]byte(nil), data...)}
}

// ConfirmWrite completes the write id with the backend's response. Only a
// response with status StatusWritten and no error message marks the bytes;
// anything else fails the command.
func (p Patches) ConfirmWrite(id uint64, status, errMsg string) (Patches, error) {
	return p.confirm(id, cmdWrite, StatusWritten, status, errMsg)
}

// BeginRevert registers a revert of the byte at a.
func (p Patches) BeginRevert(a address.Address) (Patches, RevertCommand) {
	p.nextID++
	p.pending = p.clonePending()
	p.pending[p.nextID] = pendingCommand{kind: cmdRevert, start: a, n: 1}
	return p, RevertCommand{ID: p.nextID, Address: a}
}

// ConfirmRevert completes the revert id. Only StatusReverted with no error
// message clears the byte.
func (p Patches) ConfirmRevert(id uint64, status, errMsg string) (Patches, error) {
	return p.confirm(id, cmdRevert, StatusReverted, status, errMsg)
}

// Fail drops the pending command id, for commands whose request never got a
// response.
func (p Patches) Fail(id uint64) Patches {
	if _, ok := p.pending[id]; !ok {
		return p
	}
	p.pending = p.clonePending()
	delete(p.pending, id)
	return p
}

func (p Patches) confirm(id uint64, kind commandKind, sentinel, status, errMsg string) (Patches, error) {
	cmd, ok := p.pending[id]
	if !ok || cmd.kind != kind {
		return p, fmt.Errorf("%w: %d", ErrUnknownCommand, id)
	}
	p.pending = p.clonePending()
	delete(p.pending, id)
	if status != sentinel || errMsg != "" {
		return p, &CommandError{ID: id, Address: cmd.start, Status: status, Message: errMsg}
	}
	p.modified = p.cloneModified()
	for i := 0; i < cmd.n; i++ {
		a := address.Offset(cmd.start, int64(i))
		if kind == cmdWrite {
			p.modified[a] = true
		} else {
			delete(p.modified, a)
		}
	}
	return p, nil
}

// Modified reports whether the byte at a differs from the original.
func (p Patches) Modified(a address.Address) bool {
	return p.modified[a]
}

// InstructionModified reports whether any byte of rec is modified.
func (p Patches) InstructionModified(rec Record) bool {
	for _, a := range rec.ByteAddresses() {
		if p.modified[a] {
			return true
		}
	}
	return false
}

// Pending returns the number of unconfirmed commands.
func (p Patches) Pending() int {
	return len(p.pending)
}

// Addresses returns the modified bytes in address order.
func (p Patches) Addresses() []address.Address {
	out := make([]address.Address, 0, len(p.modified))
	for a := range p.modified {
		out = append(out, a)
	}
	sortAddresses(out)
	return out
}

func (p Patches) Len() int {
	return len(p.modified)
}

func sortAddresses(s []address.Address) {
	sort.Slice(s, func(i, j int) bool { return address.Compare(s[i], s[j]) < 0 })
}

func windowLookup(window []Record) map[address.Address]Record {
	m := make(map[address.Address]Record, len(window))
	for _, r := range window {
		m[r.Address] = r
	}
	return m
}

// RevertTargets returns the modified bytes covered by the selection, in
// address order. Selected window instructions are expanded to all their
// bytes; selected addresses outside the window are checked as single bytes.
func (p Patches) RevertTargets(window []Record, selected []address.Address) []address.Address {
	recs := windowLookup(window)
	seen := make(map[address.Address]bool)
	var out []address.Address
	add := func(a address.Address) {
		if p.modified[a] && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, a := range selected {
		rec, ok := recs[a]
		if !ok {
			add(a)
			continue
		}
		for _, b := range rec.ByteAddresses() {
			add(b)
		}
	}
	sortAddresses(out)
	return out
}

type fillKind uint8

const (
	fillBroadcast fillKind = iota
	fillExplicit
)

// Fill describes the bytes a patch writes.
type Fill struct {
	kind  fillKind
	b     byte
	bytes []byte
}

// NopByte is the x86 one byte NOP.
const NopByte = 0x90

// NOP fills every byte of every selected instruction with NopByte.
func NOP() Fill { return Fill{kind: fillBroadcast, b: NopByte} }

// Byte fills every byte of every selected instruction with b.
func Byte(b byte) Fill { return Fill{kind: fillBroadcast, b: b} }

// Bytes writes bs at the first selected instruction only.
func Bytes(bs []byte) Fill {
	return Fill{kind: fillExplicit, bytes: append([]byte(nil), bs...)}
}

// WritePlan is one write to issue.
type WritePlan struct {
	Start address.Address
	Data  []byte
}

// PlanPatch computes the writes for filling the selection. selected is in
// selection order. Broadcast fills issue one write per selected
// instruction, covering its full length, in address order. Explicit bytes
// go to the first selected instruction only.
func PlanPatch(window []Record, selected []address.Address, fill Fill) ([]WritePlan, error) {
	if len(selected) == 0 {
		return nil, ErrEmptySelection
	}
	if fill.kind == fillExplicit {
		if len(fill.bytes) == 0 {
			return nil, ErrEmptyPatch
		}
		return []WritePlan{{Start: selected[0], Data: append([]byte(nil), fill.bytes...)}}, nil
	}
	recs := windowLookup(window)
	starts := make([]address.Address, 0, len(selected))
	seen := make(map[address.Address]bool, len(selected))
	for _, a := range selected {
		if !seen[a] {
			seen[a] = true
			starts = append(starts, a)
		}
	}
	sortAddresses(starts)
	plans := make([]WritePlan, 0, len(starts))
	for _, a := range starts {
		n := 1
		if rec, ok := recs[a]; ok {
			n = rec.Len()
		}
		data := make([]byte, n)
		for i := range data {
			data[i] = fill.b
		}
		plans = append(plans, WritePlan{Start: a, Data: data})
	}
	return plans, nil
}
