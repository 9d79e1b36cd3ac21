package asmfmt

type tokenKind uint8

const (
	tokSpace tokenKind = iota
	// tokWord is a run of identifier characters: a mnemonic suffix, a
	// register, a symbol or a decimal scale factor.
	tokWord
	// tokNumber is a hexadecimal literal, optionally preceded by the $
	// immediate marker and a minus sign.
	tokNumber
	// tokSigil is the AT&T register sigil.
	tokSigil
	tokPunct
)

type token struct {
	kind tokenKind
	text string

	// Set for tokNumber only.
	marker bool
	neg    bool
	digits string
}

func isWordChar(c byte) bool {
	return c == '_' || c == '.' || c == '@' ||
		('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

// tokenize splits operand text into tokens. Concatenating the text of the
// returned tokens yields s.
func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isSpace(c):
			j := i
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokSpace, text: s[i:j]})
			i = j
		case (c == '$' || c == '-' || c == '0') && (i == 0 || !isWordChar(s[i-1])):
			if tok, n := lexNumber(s[i:]); n > 0 {
				toks = append(toks, tok)
				i += n
				continue
			}
			if c == '0' {
				j := scanWord(s, i)
				toks = append(toks, token{kind: tokWord, text: s[i:j]})
				i = j
				continue
			}
			toks = append(toks, token{kind: tokPunct, text: s[i : i+1]})
			i++
		case isWordChar(c):
			j := scanWord(s, i)
			toks = append(toks, token{kind: tokWord, text: s[i:j]})
			i = j
		case c == '%':
			toks = append(toks, token{kind: tokSigil, text: "%"})
			i++
		default:
			toks = append(toks, token{kind: tokPunct, text: s[i : i+1]})
			i++
		}
	}
	return toks
}

func scanWord(s string, i int) int {
	for i < len(s) && isWordChar(s[i]) {
		i++
	}
	return i
}

// lexNumber recognizes [$][-]0x<hex digits> at the start of s and returns
// the token and its length, or a zero length.
func lexNumber(s string) (token, int) {
	tok := token{kind: tokNumber}
	i := 0
	if i < len(s) && s[i] == '$' {
		tok.marker = true
		i++
	}
	if i < len(s) && s[i] == '-' {
		tok.neg = true
		i++
	}
	if i+2 >= len(s) || s[i] != '0' || (s[i+1] != 'x' && s[i+1] != 'X') || !isHexDigit(s[i+2]) {
		return token{}, 0
	}
	i += 2
	start := i
	for i < len(s) && isHexDigit(s[i]) {
		i++
	}
	tok.digits = s[start:i]
	tok.text = s[:i]
	return tok, i
}
