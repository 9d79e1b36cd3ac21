package offline

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/service/api"
)

// maxInstructionLength is the longest x86 instruction.
const maxInstructionLength = 15

// symbol is a function symbol of the image.
type symbol struct {
	name string
	addr uint64
}

// symbolTable is sorted by address.
type symbolTable []symbol

func newSymbolTable(syms []symbol) symbolTable {
	t := append(symbolTable(nil), syms...)
	sort.Slice(t, func(i, j int) bool { return t[i].addr < t[j].addr })
	return t
}

// lookup returns the symbol containing addr and its start, in the form
// expected by x86asm.
func (t symbolTable) lookup(addr uint64) (string, uint64) {
	i := sort.Search(len(t), func(i int) bool { return t[i].addr > addr })
	if i == 0 {
		return "", 0
	}
	return t[i-1].name, t[i-1].addr
}

// describe returns addr in gdb's <sym+off> notation, or "".
func (t symbolTable) describe(addr uint64) string {
	name, base := t.lookup(addr)
	if name == "" {
		return ""
	}
	if addr == base {
		return "<" + name + ">"
	}
	return fmt.Sprintf("<%s+%d>", name, addr-base)
}

// decoded is one decoded instruction.
type decoded struct {
	addr uint64
	inst x86asm.Inst
	size int
	ok   bool
}

// decode decodes the instruction at addr. Undecodable bytes are returned
// as one byte instructions with ok unset.
func decode(img *Image, addr uint64) decoded {
	mem := img.Read(addr, maxInstructionLength)
	if len(mem) == 0 {
		return decoded{addr: addr}
	}
	inst, err := x86asm.Decode(mem, img.Mode)
	if err != nil || inst.Len == 0 {
		return decoded{addr: addr, size: 1}
	}
	return decoded{addr: addr, inst: inst, size: inst.Len, ok: true}
}

// branchTarget returns the absolute target of a pc-relative branch.
func (d decoded) branchTarget() (uint64, bool) {
	if !d.ok {
		return 0, false
	}
	for _, a := range d.inst.Args {
		if rel, ok := a.(x86asm.Rel); ok {
			return uint64(int64(d.addr) + int64(d.size) + int64(rel)), true
		}
	}
	return 0, false
}

// text renders the instruction the way gdb does: pc-relative operands stay
// relative and the resolved target is written as a comment.
func (d decoded) text(flavor settings.Flavor, syms symbolTable) string {
	if !d.ok {
		return "(bad)"
	}
	var s string
	switch flavor {
	case settings.FlavorIntel:
		s = x86asm.IntelSyntax(d.inst, 0, syms.lookup)
	default:
		s = x86asm.GNUSyntax(d.inst, 0, syms.lookup)
	}
	target, ok := d.branchTarget()
	if !ok {
		return s
	}
	// x86asm writes relative operands as .+0x10 when pc is zero
	s = strings.Replace(s, ".+0x", "0x", 1)
	s = strings.Replace(s, ".-0x", "-0x", 1)
	comment := fmt.Sprintf("%#x", target)
	if sym := syms.describe(target); sym != "" {
		comment += " " + sym
	}
	return s + " # " + comment
}

func opcodes(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = fmt.Sprintf("%02x", b[i])
	}
	return strings.Join(parts, " ")
}

// Disassemble returns count instructions starting at start. The listing
// stops early at the end of the image.
func Disassemble(img *Image, start uint64, count int, flavor settings.Flavor) []api.Instruction {
	syms := img.syms
	r := make([]api.Instruction, 0, count)
	addr := start
	for len(r) < count && img.Contains(addr) {
		d := decode(img, addr)
		in := api.Instruction{
			Address: fmt.Sprintf("%#x", addr),
			Inst:    d.text(flavor, syms),
			Opcodes: opcodes(img.Read(addr, d.size)),
		}
		if name, base := syms.lookup(addr); name != "" {
			in.FuncName = name
			in.Offset = fmt.Sprintf("%d", addr-base)
		}
		r = append(r, in)
		addr += uint64(d.size)
	}
	return r
}
