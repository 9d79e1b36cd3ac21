// Package address canonicalizes target addresses.
//
// Every address stored or used as a key anywhere in cpuview is an Address
// produced by Normalize: lowercase hexadecimal with a 0x prefix and no
// leading zeros, so that two spellings of the same integer compare equal as
// strings.
package address

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Address is the canonical form of a target address. The zero value means
// "no address".
type Address string

// ErrInvalid is wrapped by every error returned by Normalize.
var ErrInvalid = errors.New("invalid address")

// InvalidError reports an input that is not an address.
type InvalidError struct {
	Input  string
	Reason string
}

func (e *InvalidError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid address %q", e.Input)
	}
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }

// Normalize parses input and returns its canonical form. Accepted spellings
// are 0x-prefixed hex, h-suffixed hex, decimal and bare hex digits. A string
// made only of decimal digits is read as decimal.
func Normalize(input string) (Address, error) {
	v, err := parse(input)
	if err != nil {
		return "", err
	}
	return fromBig(v), nil
}

// MustNormalize is like Normalize but panics on invalid input. Intended for
// constants.
func MustNormalize(input string) Address {
	a, err := Normalize(input)
	if err != nil {
		panic(err)
	}
	return a
}

// FromUint64 returns the canonical form of v.
func FromUint64(v uint64) Address {
	return Address(fmt.Sprintf("%#x", v))
}

func parse(input string) (*big.Int, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return nil, &InvalidError{Input: input, Reason: "empty"}
	}
	if s[0] == '-' {
		return nil, &InvalidError{Input: input, Reason: "negative"}
	}

	var digits string
	base := 16
	switch {
	case strings.HasPrefix(s, "0x"):
		digits = s[2:]
	case strings.HasSuffix(s, "h") && len(s) > 1 && isHex(s[:len(s)-1]):
		digits = s[:len(s)-1]
	case isDecimal(s):
		digits, base = s, 10
	default:
		digits = s
	}
	if digits == "" || (base == 16 && !isHex(digits)) {
		return nil, &InvalidError{Input: input}
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, &InvalidError{Input: input}
	}
	return v, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9') && !('a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func fromBig(v *big.Int) Address {
	return Address("0x" + v.Text(16))
}

// Valid reports whether a is in canonical form.
func (a Address) Valid() bool {
	if !strings.HasPrefix(string(a), "0x") {
		return false
	}
	n, err := Normalize(string(a))
	return err == nil && n == a
}

func (a Address) String() string {
	return string(a)
}

// Big returns the value of a, or nil if a is not an address.
func (a Address) Big() *big.Int {
	v, err := parse(string(a))
	if err != nil {
		return nil
	}
	return v
}

// Uint64 returns the value of a. The second return value is false when a is
// not an address or does not fit in 64 bits.
func (a Address) Uint64() (uint64, bool) {
	v := a.Big()
	if v == nil || !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

// Offset adds delta to a, clamping the result at zero. Offset of an invalid
// address is the zero Address.
func Offset(a Address, delta int64) Address {
	v := a.Big()
	if v == nil {
		return ""
	}
	v.Add(v, big.NewInt(delta))
	if v.Sign() < 0 {
		v.SetInt64(0)
	}
	return fromBig(v)
}

// Low keeps the low-order bits of a.
func Low(a Address, bits uint) Address {
	v := a.Big()
	if v == nil {
		return ""
	}
	mask := new(big.Int).Lsh(big.NewInt(1), bits)
	mask.Sub(mask, big.NewInt(1))
	return fromBig(v.And(v, mask))
}

// Compare orders addresses numerically. Invalid addresses sort first.
func Compare(a, b Address) int {
	va, vb := a.Big(), b.Big()
	switch {
	case va == nil && vb == nil:
		return 0
	case va == nil:
		return -1
	case vb == nil:
		return 1
	}
	return va.Cmp(vb)
}

// Distance returns b-a as an int64. The second return value is false if
// either address is invalid or the difference does not fit.
func Distance(a, b Address) (int64, bool) {
	va, vb := a.Big(), b.Big()
	if va == nil || vb == nil {
		return 0, false
	}
	d := new(big.Int).Sub(vb, va)
	if !d.IsInt64() {
		return 0, false
	}
	return d.Int64(), true
}
