package api

import (
	"encoding/json"
	"strconv"
)

// Instruction is one disassembled instruction as returned by the backend.
type Instruction struct {
	// Address of the first byte, as written by the backend.
	Address string `json:"address"`
	// Inst is the instruction text. It may carry an inferred comment after
	// a '#'.
	Inst string `json:"inst"`
	// Opcodes are the instruction bytes as space separated hex pairs.
	Opcodes  string `json:"opcodes,omitempty"`
	FuncName string `json:"func-name,omitempty"`
	Offset   string `json:"offset,omitempty"`
}

// Register is a register value. Number is the backend's register number;
// Name may be omitted, in which case it is found in the register name list
// pushed as register_names.
type Register struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
	Value  string `json:"value"`
}

// Metadata describes the loaded target.
type Metadata struct {
	PID       int    `json:"pid,omitempty"`
	Arch      string `json:"arch,omitempty"`
	ImageBase string `json:"imageBase,omitempty"`
}

// Progress is the payload of a progress event.
type Progress struct {
	Message string `json:"message"`
	Percent int    `json:"percent"`
	Show    bool   `json:"show"`
}

// Window is the object form of a disassembly event payload. Backends may
// also push a bare instruction list, which carries no sequence number.
type Window struct {
	Seq          uint64        `json:"seq,omitempty"`
	Instructions []Instruction `json:"instructions"`
}

// LoadSessionIn is the body of POST /session/load. An empty Path reloads the
// last opened target.
type LoadSessionIn struct {
	Path string `json:"path,omitempty"`
}

type LoadSessionOut struct {
	Status   string            `json:"status,omitempty"`
	Message  string            `json:"message,omitempty"`
	Path     string            `json:"path,omitempty"`
	Comments map[string]string `json:"comments"`
	Patches  []string          `json:"patches"`
	Metadata Metadata          `json:"metadata"`
	Error    string            `json:"error,omitempty"`
	Details  string            `json:"details,omitempty"`
}

// DisassembleIn is the body of POST /memory/disassemble.
type DisassembleIn struct {
	Start string `json:"start"`
	Count int    `json:"count"`
	// Seq is echoed in the response and the pushed window.
	Seq uint64 `json:"seq,omitempty"`
}

// DisassembleOut is the response of POST /memory/disassemble. Backends that
// deliver the window on the push channel answer with status "requested" and
// no instructions.
type DisassembleOut struct {
	Status       string        `json:"status,omitempty"`
	Cmd          string        `json:"cmd,omitempty"`
	Seq          uint64        `json:"seq,omitempty"`
	Instructions []Instruction `json:"instructions,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// WriteMemoryIn is the body of POST /memory/write.
type WriteMemoryIn struct {
	Address string `json:"address"`
	Bytes   []int  `json:"bytes"`
}

// NewWriteMemoryIn converts data to the wire form.
func NewWriteMemoryIn(addr string, data []byte) WriteMemoryIn {
	bs := make([]int, len(data))
	for i, b := range data {
		bs[i] = int(b)
	}
	return WriteMemoryIn{Address: addr, Bytes: bs}
}

// WriteMemoryOut carries StatusWritten on success.
type WriteMemoryOut struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RevertMemoryIn is the body of POST /memory/revert. One byte is reverted.
type RevertMemoryIn struct {
	Address string `json:"address"`
}

// RevertMemoryOut carries StatusReverted on success.
type RevertMemoryOut struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CommentIn is the body of POST /session/comment. An empty comment deletes.
type CommentIn struct {
	Address string `json:"address"`
	Comment string `json:"comment"`
}

// StatusOut is the generic response of command endpoints.
type StatusOut struct {
	Status       string `json:"status,omitempty"`
	Error        string `json:"error,omitempty"`
	DeletedCount int    `json:"deleted_count,omitempty"`
}

// SettingIn is the body of POST /settings.
type SettingIn struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingsOut is the response of GET /settings. Values are JSON strings or
// booleans depending on the backend.
type SettingsOut map[string]json.RawMessage

// Strings returns every setting value in string form.
func (s SettingsOut) Strings() map[string]string {
	r := make(map[string]string, len(s))
	for k, raw := range s {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			r[k] = str
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			r[k] = strconv.FormatBool(b)
			continue
		}
		r[k] = string(raw)
	}
	return r
}

// TargetFile is an entry of GET /targets/list.
type TargetFile struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Executable bool   `json:"executable"`
}

type TargetsOut struct {
	Files []TargetFile `json:"files"`
	Error string       `json:"error,omitempty"`
}

type VersionOut struct {
	Version string `json:"version"`
}

// Response status sentinels.
const (
	StatusOK        = "ok"
	StatusSaved     = "saved"
	StatusWritten   = "written"
	StatusReverted  = "reverted"
	StatusRequested = "requested"
	StatusStepping  = "stepping"
)
