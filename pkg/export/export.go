// Package export renders instructions as text for the clipboard.
package export

import (
	"fmt"
	"strings"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/asmfmt"
	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/pkg/state"
)

// Kind selects what is exported.
type Kind string

const (
	// KindLine exports address, opcodes, instruction and comment separated
	// by tabs, one instruction per line.
	KindLine Kind = "line"
	// KindAddress exports addresses, one per line.
	KindAddress Kind = "address"
	// KindAsm exports the formatted instructions, one per line.
	KindAsm Kind = "asm"
	// KindOffset exports the low 24 bits of each address, one per line.
	KindOffset Kind = "offset"
	// KindHex exports opcode bytes in the requested HexFormat.
	KindHex Kind = "hex"
)

// OffsetBits is the number of address bits kept by KindOffset.
const OffsetBits = 24

// Kinds lists every export kind.
var Kinds = []Kind{KindLine, KindAddress, KindAsm, KindOffset, KindHex}

// ParseKind parses an export kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown export kind %q", s)
}

// Request describes one export.
type Request struct {
	// Targets are the addresses to export. When empty the first window
	// instruction is exported.
	Targets []address.Address
	Kind    Kind
	// Hex is used by KindHex only.
	Hex settings.HexFormat
}

// Export renders the window instructions named by req. Output follows
// window order; targets not in the window are ignored.
func Export(m state.Model, req Request) string {
	recs := pick(m.Session.Window, req.Targets)
	if len(recs) == 0 {
		return ""
	}

	var lines []string
	switch req.Kind {
	case KindAddress:
		for _, r := range recs {
			lines = append(lines, string(r.Address))
		}
	case KindOffset:
		for _, r := range recs {
			lines = append(lines, string(address.Low(r.Address, OffsetBits)))
		}
	case KindAsm:
		for _, r := range recs {
			lines = append(lines, asmfmt.Format(r.RawText, m.Settings).Text())
		}
	case KindHex:
		return hexDump(recs, req.Hex)
	default:
		for _, r := range recs {
			f := asmfmt.Format(r.RawText, m.Settings)
			lines = append(lines, strings.Join([]string{
				string(r.Address),
				r.Opcodes,
				f.Text(),
				m.EffectiveComment(r),
			}, "\t"))
		}
	}
	return strings.Join(lines, "\n")
}

func pick(window []state.Record, targets []address.Address) []state.Record {
	if len(window) == 0 {
		return nil
	}
	if len(targets) == 0 {
		return window[:1]
	}
	want := make(map[address.Address]bool, len(targets))
	for _, a := range targets {
		want[a] = true
	}
	var out []state.Record
	for _, r := range window {
		if want[r.Address] {
			out = append(out, r)
		}
	}
	return out
}

// hexDump renders opcode bytes. Raw and python dumps are one contiguous
// string; space and prefix dumps have one line per instruction.
// Instructions without known opcodes are skipped.
func hexDump(recs []state.Record, f settings.HexFormat) string {
	var b strings.Builder
	var lines []string
	for _, r := range recs {
		bs := strings.Fields(strings.ToLower(r.Opcodes))
		if len(bs) == 0 {
			continue
		}
		switch f {
		case settings.HexSpace:
			lines = append(lines, strings.Join(bs, " "))
		case settings.HexPrefix:
			for i := range bs {
				bs[i] = "0x" + bs[i]
			}
			lines = append(lines, strings.Join(bs, " "))
		case settings.HexPython:
			for _, x := range bs {
				b.WriteString(`\x`)
				b.WriteString(x)
			}
		default:
			for _, x := range bs {
				b.WriteString(x)
			}
		}
	}
	if f == settings.HexSpace || f == settings.HexPrefix {
		return strings.Join(lines, "\n")
	}
	return b.String()
}
