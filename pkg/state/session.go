package state

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cpuview/cpuview/pkg/address"
)

// Effect is an action a transition asks its caller to perform.
type Effect interface {
	isEffect()
}

// Refresh requests the instruction window starting at Anchor. The response
// must be delivered to ReceiveWindow tagged with Seq.
type Refresh struct {
	Anchor address.Address
	Seq    uint64
}

func (Refresh) isEffect() {}

// Register IDs of the instruction pointer in gdb's numbering.
const (
	ipRegisterAMD64 = "16"
	ipRegisterI386  = "8"
)

// ErrDuplicateRegister is returned by SetRegisters when two registers share
// an ID.
var ErrDuplicateRegister = errors.New("duplicate register id")

// Session tracks the target's execution state, its registers and the
// instruction window displayed to the user.
type Session struct {
	Status        Status
	ThreadID      string
	Arch          string
	Registers     []Register
	RegisterNames []string
	Progress      Progress

	// Window is the current instruction window, in address order.
	Window []Record
	// Anchor is the first address of the requested window. Empty until a
	// window or a navigation sets it.
	Anchor address.Address

	inflight address.Address // anchor of the outstanding refresh, if any
	seq      uint64          // last issued refresh sequence number
}

// Reset returns an idle session. The sequence counter moves past every
// request issued before the reset, so their responses are discarded.
func (s Session) Reset() Session {
	return Session{seq: s.seq + 1}
}

// Refreshing reports whether a window refresh is outstanding.
func (s Session) Refreshing() bool {
	return s.inflight != ""
}

// LastSeq returns the sequence number of the last issued refresh.
func (s Session) LastSeq() uint64 {
	return s.seq
}

// SetStatus changes the execution status. Entering Paused checks the
// instruction pointer against the window.
func (s Session) SetStatus(st Status) (Session, []Effect) {
	s.Status = st
	return s.followIP()
}

// SetThread records the current thread.
func (s Session) SetThread(id string) Session {
	s.ThreadID = id
	return s
}

// SetArch records the target architecture from session metadata. The
// architecture decides which register number holds the instruction pointer.
func (s Session) SetArch(arch string) (Session, []Effect) {
	s.Arch = arch
	return s.followIP()
}

// SetProgress records a progress report.
func (s Session) SetProgress(p Progress) Session {
	s.Progress = p
	return s
}

// SetRegisters replaces the register set. A set with duplicate IDs is
// rejected as a whole and the session is returned unchanged.
func (s Session) SetRegisters(regs []Register) (Session, []Effect, error) {
	seen := make(map[string]bool, len(regs))
	for _, r := range regs {
		if seen[r.ID] {
			return s, nil, fmt.Errorf("%w: %q", ErrDuplicateRegister, r.ID)
		}
		seen[r.ID] = true
	}
	s.Registers = append([]Register(nil), regs...)
	ns, effects := s.followIP()
	return ns, effects, nil
}

// SetRegisterNames replaces the register name table, indexed by register
// number.
func (s Session) SetRegisterNames(names []string) (Session, []Effect) {
	s.RegisterNames = append([]string(nil), names...)
	return s.followIP()
}

// registerName returns the name of r, looking it up in the name table when
// the register carries none.
func (s Session) registerName(r Register) string {
	if r.Name != "" {
		return r.Name
	}
	if i, err := strconv.Atoi(r.ID); err == nil && i >= 0 && i < len(s.RegisterNames) {
		return s.RegisterNames[i]
	}
	return ""
}

func (s Session) hasNames() bool {
	for _, r := range s.Registers {
		if s.registerName(r) != "" {
			return true
		}
	}
	return false
}

// Register returns the value of the register called name.
func (s Session) Register(name string) (string, bool) {
	for _, r := range s.Registers {
		if strings.EqualFold(s.registerName(r), name) {
			return r.Value, true
		}
	}
	return "", false
}

// RegisterNameOf returns the display name of r.
func (s Session) RegisterNameOf(r Register) string {
	if n := s.registerName(r); n != "" {
		return n
	}
	return "r" + r.ID
}

// InstructionPointer returns the live instruction pointer. When any
// register has a name the lookup is by name only (rip, then eip);
// otherwise it is by register number only.
func (s Session) InstructionPointer() (address.Address, bool) {
	var value string
	found := false
	if s.hasNames() {
		for _, name := range []string{"rip", "eip"} {
			if value, found = s.Register(name); found {
				break
			}
		}
	} else {
		id := ipRegisterAMD64
		if isI386(s.Arch) {
			id = ipRegisterI386
		}
		for _, r := range s.Registers {
			if r.ID == id {
				value, found = r.Value, true
				break
			}
		}
	}
	if !found {
		return "", false
	}
	// gdb may append a symbol: 0x401000 <main+4>
	if f := strings.Fields(value); len(f) > 0 {
		value = f[0]
	}
	a, err := address.Normalize(value)
	if err != nil {
		return "", false
	}
	return a, true
}

func isI386(arch string) bool {
	switch strings.ToLower(arch) {
	case "i386", "i686", "x86", "386":
		return true
	}
	return false
}

// followIP moves the anchor to the instruction pointer when the target is
// paused and the pointer is not in the window.
func (s Session) followIP() (Session, []Effect) {
	if s.Status != Paused {
		return s, nil
	}
	ip, ok := s.InstructionPointer()
	if !ok {
		return s, nil
	}
	if len(s.Window) > 0 && s.Contains(ip) {
		return s, nil
	}
	if s.inflight == ip {
		return s, nil
	}
	return s.refresh(ip)
}

// Navigate moves the anchor and requests the matching window. A request
// for the anchor of the outstanding refresh is suppressed.
func (s Session) Navigate(anchor address.Address) (Session, []Effect) {
	if anchor == "" {
		return s, nil
	}
	if s.inflight == anchor {
		s.Anchor = anchor
		return s, nil
	}
	return s.refresh(anchor)
}

// Reload requests the window at the current anchor again, even if one is
// outstanding.
func (s Session) Reload() (Session, []Effect) {
	if s.Anchor == "" {
		return s, nil
	}
	return s.refresh(s.Anchor)
}

func (s Session) refresh(anchor address.Address) (Session, []Effect) {
	s.seq++
	s.Anchor = anchor
	s.inflight = anchor
	return s, []Effect{Refresh{Anchor: anchor, Seq: s.seq}}
}

// ReceiveWindow replaces the window. seq is the sequence number of the
// request the window answers, zero for windows pushed without one. A
// window answering a request older than the last issued one is stale and
// is discarded; the second return value reports whether the window was
// applied.
func (s Session) ReceiveWindow(recs []Record, seq uint64) (Session, bool) {
	if seq != 0 && seq < s.seq {
		return s, false
	}
	s.Window = append([]Record(nil), recs...)
	if s.Anchor == "" && len(recs) > 0 {
		s.Anchor = recs[0].Address
	}
	s.inflight = ""
	return s, true
}

// RefreshFailed clears the outstanding refresh if seq is the last issued
// request.
func (s Session) RefreshFailed(seq uint64) Session {
	if seq == s.seq {
		s.inflight = ""
	}
	return s
}

// Index returns the position of a in the window, or -1.
func (s Session) Index(a address.Address) int {
	for i := range s.Window {
		if s.Window[i].Address == a {
			return i
		}
	}
	return -1
}

// Contains reports whether a is the address of an instruction in the
// window.
func (s Session) Contains(a address.Address) bool {
	return s.Index(a) >= 0
}

// Record returns the window instruction at a.
func (s Session) Record(a address.Address) (Record, bool) {
	if i := s.Index(a); i >= 0 {
		return s.Window[i], true
	}
	return Record{}, false
}
