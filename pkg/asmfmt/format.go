// Package asmfmt renders raw disassembly text into display fields.
//
// Rendering runs in explicit stages: the inline comment is split off, the
// mnemonic is split from the operands, case is applied, and the operands are
// tokenized once and rewritten in a single pass (register sigils and number
// styles) before the optional operand swap and jump target resolution.
// Rewritten tokens are never scanned again.
package asmfmt

import (
	"strconv"
	"strings"

	"github.com/cpuview/cpuview/pkg/settings"
)

// CommentDelimiter separates an instruction from the comment the
// disassembler embedded in its text.
const CommentDelimiter = "#"

// Formatted is the display form of one instruction.
type Formatted struct {
	Mnemonic string
	Operands string
	// Comment is the inferred comment found after CommentDelimiter.
	Comment string
}

// Text returns the mnemonic followed by the operands.
func (f Formatted) Text() string {
	if f.Operands == "" {
		return f.Mnemonic
	}
	return f.Mnemonic + " " + f.Operands
}

// SplitComment separates raw into its code and inferred comment.
func SplitComment(raw string) (code, comment string) {
	i := strings.Index(raw, CommentDelimiter)
	if i < 0 {
		return strings.TrimSpace(raw), ""
	}
	return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+len(CommentDelimiter):])
}

// Format renders raw according to s.
func Format(raw string, s settings.Settings) Formatted {
	code, comment := SplitComment(raw)

	mnemonic, operands := code, ""
	if i := strings.IndexAny(code, " \t"); i >= 0 {
		mnemonic = code[:i]
		operands = strings.TrimSpace(code[i:])
	}

	mnemonic = applyCase(mnemonic, s.ListingCase)
	operands = applyCase(operands, s.ListingCase)

	operands = rewrite(operands, s)

	if s.SwapArguments {
		operands = swapOperands(operands)
	}

	if isBranch(mnemonic) && comment != "" {
		if target := findHexAddress(comment); target != "" && isBareNumber(operands) {
			operands = target
		}
	}

	return Formatted{Mnemonic: mnemonic, Operands: operands, Comment: comment}
}

func applyCase(s string, c settings.Case) string {
	if c == settings.CaseLower {
		return strings.ToLower(s)
	}
	return strings.ToUpper(s)
}

// rewrite is the single token pass over the operands.
func rewrite(operands string, s settings.Settings) string {
	var b strings.Builder
	for _, tok := range tokenize(operands) {
		switch tok.kind {
		case tokSigil:
			// dropped, re-applied below to recognized registers only
		case tokWord:
			if s.RegisterNaming == settings.NamingPercent && IsRegister(tok.text) {
				b.WriteByte('%')
			}
			b.WriteString(tok.text)
		case tokNumber:
			b.WriteString(formatNumber(tok, s))
		default:
			b.WriteString(tok.text)
		}
	}
	return b.String()
}

func formatNumber(tok token, s settings.Settings) string {
	v, err := strconv.ParseUint(tok.digits, 16, 64)
	if err != nil {
		// too wide to convert: keep the value as written, in listing case
		out := "0x" + applyCase(tok.digits, s.ListingCase)
		if tok.neg {
			out = "-" + out
		}
		if tok.marker {
			out = "$" + out
		}
		return out
	}
	neg := tok.neg
	if neg && s.NegativeFormat == settings.NegativeUnsigned {
		v = (^v + 1) & widthMask(s.NegativeWidth)
		neg = false
	}

	var out string
	switch s.NumberFormat {
	case settings.NumberHexClean:
		out = "0x" + hexDigits(v, s.ListingCase)
	case settings.NumberHexAsm:
		out = hexDigits(v, s.ListingCase) + "h"
		if c := out[0]; !('0' <= c && c <= '9') {
			out = "0" + out
		}
		out = applyCase(out, s.ListingCase)
	case settings.NumberDecimal:
		out = strconv.FormatUint(v, 10)
	default:
		out = "0x" + hexDigits(v, s.ListingCase)
	}
	if neg {
		out = "-" + out
	}
	if tok.marker && (s.NumberFormat == settings.NumberAuto || s.NumberFormat == "") {
		out = "$" + out
	}
	return out
}

func widthMask(bits int) uint64 {
	switch bits {
	case 8, 16, 32:
		return 1<<uint(bits) - 1
	default:
		return ^uint64(0)
	}
}

func hexDigits(v uint64, c settings.Case) string {
	h := strconv.FormatUint(v, 16)
	if c == settings.CaseLower {
		return h
	}
	return strings.ToUpper(h)
}

// SplitOperands splits operands on the commas that are not nested inside
// parentheses or brackets.
func SplitOperands(operands string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(operands); i++ {
		switch operands[i] {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(operands[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(operands[start:]))
}

// swapOperands moves the first operand last.
func swapOperands(operands string) string {
	parts := SplitOperands(operands)
	if len(parts) < 2 {
		return operands
	}
	return strings.Join(parts[1:], ", ") + "," + parts[0]
}

func isBranch(mnemonic string) bool {
	m := strings.ToLower(mnemonic)
	return strings.HasPrefix(m, "j") || strings.HasPrefix(m, "call")
}

// findHexAddress returns the first 0x literal in s.
func findHexAddress(s string) string {
	for i := 0; i+2 < len(s); i++ {
		if s[i] != '0' || (s[i+1] != 'x' && s[i+1] != 'X') || !isHexDigit(s[i+2]) {
			continue
		}
		if i > 0 && isWordChar(s[i-1]) {
			continue
		}
		j := i + 2
		for j < len(s) && isHexDigit(s[j]) {
			j++
		}
		return s[i:j]
	}
	return ""
}

// isBareNumber reports whether operands is a single relative or unresolved
// target: a hex literal, an h-suffixed hex literal or a decimal number.
func isBareNumber(operands string) bool {
	s := strings.TrimPrefix(operands, "-")
	if s == "" {
		return false
	}
	all := func(s string, pred func(byte) bool) bool {
		if s == "" {
			return false
		}
		for i := 0; i < len(s); i++ {
			if !pred(s[i]) {
				return false
			}
		}
		return true
	}
	isDec := func(c byte) bool { return '0' <= c && c <= '9' }
	switch {
	case len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X'):
		return all(s[2:], isHexDigit)
	case s[len(s)-1] == 'h' || s[len(s)-1] == 'H':
		return all(s[:len(s)-1], isHexDigit)
	default:
		return all(s, isDec)
	}
}
