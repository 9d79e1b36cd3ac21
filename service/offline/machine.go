package offline

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/cpuview/cpuview/service/api"
)

// maxRunSteps bounds a run command so that a loop in the image does not
// hang the backend.
const maxRunSteps = 100000

const int3 = 0xcc

// Register tables in gdb's numbering. The instruction pointer is register
// 16 on amd64 and 8 on i386.
var (
	registersAMD64 = []string{
		"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
		"rip", "eflags", "cs", "ss", "ds", "es", "fs", "gs",
	}
	registersI386 = []string{
		"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
		"eip", "eflags", "cs", "ss", "ds", "es", "fs", "gs",
	}
)

// Status values pushed on the status channel.
const (
	statusIdle    = "IDLE"
	statusRunning = "RUNNING"
	statusPaused  = "PAUSED"
	statusExited  = "EXITED"
)

// machine simulates execution over an image. There are no data registers
// or flags: conditional branches are never taken, calls and returns use a
// private return stack.
type machine struct {
	img    *Image
	status string
	ip     uint64
	stack  []uint64
	thread int
}

func newMachine(img *Image) *machine {
	return &machine{img: img, status: statusPaused, ip: img.Entry, thread: 1}
}

func (m *machine) arch() string {
	if m.img.Mode == 32 {
		return "i386"
	}
	return "i386:x86-64"
}

func (m *machine) registerNames() []string {
	if m.img.Mode == 32 {
		return registersI386
	}
	return registersAMD64
}

// registers returns the register set. Names are left out: clients find
// them in the register_names table.
func (m *machine) registers() []api.Register {
	names := m.registerNames()
	stackTop := uint64(0x7ffffffde000)
	if m.img.Mode == 32 {
		stackTop = 0xbffff000
	}
	regs := make([]api.Register, len(names))
	for i, name := range names {
		v := uint64(0)
		switch name {
		case "rip", "eip":
			v = m.ip
		case "rsp", "esp":
			v = stackTop - uint64(len(m.stack))*uint64(m.img.Mode/8)
		case "eflags":
			v = 0x246
		}
		regs[i] = api.Register{Number: fmt.Sprint(i), Value: fmt.Sprintf("%#x", v)}
	}
	return regs
}

// step executes one instruction. Over steps across calls.
func (m *machine) step(over bool) {
	if m.status == statusExited {
		return
	}
	d := decode(m.img, m.ip)
	if d.size == 0 {
		m.status = statusExited
		return
	}
	next := m.ip + uint64(d.size)
	if d.ok {
		switch d.inst.Op {
		case x86asm.CALL:
			if target, ok := d.branchTarget(); ok && !over {
				m.stack = append(m.stack, next)
				next = target
			}
		case x86asm.JMP:
			if target, ok := d.branchTarget(); ok {
				next = target
			}
		case x86asm.RET:
			if len(m.stack) == 0 {
				m.status = statusExited
				return
			}
			next = m.stack[len(m.stack)-1]
			m.stack = m.stack[:len(m.stack)-1]
		case x86asm.HLT:
			m.status = statusExited
			return
		}
	}
	m.ip = next
	if !m.img.Contains(m.ip) {
		m.status = statusExited
	}
}

// run steps until the next instruction is a breakpoint (int3) or the
// target exits. It returns the number of executed instructions.
func (m *machine) run() int {
	n := 0
	for ; n < maxRunSteps && m.status != statusExited; n++ {
		m.step(false)
		if b := m.img.Read(m.ip, 1); len(b) == 1 && b[0] == int3 {
			break
		}
	}
	if m.status != statusExited {
		m.status = statusPaused
	}
	return n
}
