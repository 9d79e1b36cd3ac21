// Package settings holds the user-configurable display options.
//
// Settings is a plain value. Changing it only changes how instructions are
// rendered and exported; it never touches session, selection, history or
// patch state.
package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Case selects the letter case of the listing.
type Case string

const (
	CaseUpper Case = "upper"
	CaseLower Case = "lower"
)

// RegisterNaming selects how register operands are written.
type RegisterNaming string

const (
	// NamingPlain writes registers without a sigil: rax.
	NamingPlain RegisterNaming = "plain"
	// NamingPercent writes registers with the AT&T sigil: %rax.
	NamingPercent RegisterNaming = "percent"
)

// NumberFormat selects how hexadecimal immediates and displacements are
// written.
type NumberFormat string

const (
	// NumberAuto keeps the immediate marker: $0x1F.
	NumberAuto NumberFormat = "auto"
	// NumberHexClean drops the marker: 0x1F.
	NumberHexClean NumberFormat = "hex_clean"
	// NumberHexAsm uses the assembler suffix: 1Fh, 0AH.
	NumberHexAsm NumberFormat = "hex_asm"
	// NumberDecimal writes decimal: 31.
	NumberDecimal NumberFormat = "dec"
)

// NegativeFormat selects how negative numbers are written.
type NegativeFormat string

const (
	NegativeSigned   NegativeFormat = "signed"
	NegativeUnsigned NegativeFormat = "unsigned"
)

// HexFormat is the encoding used when copying opcode bytes.
type HexFormat string

const (
	// HexRaw concatenates bytes: 9090c3.
	HexRaw HexFormat = "raw"
	// HexSpace separates bytes with spaces, one instruction per line.
	HexSpace HexFormat = "space"
	// HexPrefix writes 0x90 0x90, one instruction per line.
	HexPrefix HexFormat = "prefix"
	// HexPython writes backslash escapes: \x90\x90\xc3.
	HexPython HexFormat = "python"
)

// Flavor is the disassembly syntax requested from the backend.
type Flavor string

const (
	FlavorATT   Flavor = "att"
	FlavorIntel Flavor = "intel"
)

// Setting keys, as stored by the backend.
const (
	KeyListingCase       = "listingCase"
	KeyRegisterNaming    = "registerNaming"
	KeySwapArguments     = "swapArguments"
	KeyNumberFormat      = "numberFormat"
	KeyNegativeFormat    = "negativeFormat"
	KeyNegativeWidth     = "negativeWidth"
	KeyCopyHexFormat     = "copyHexFormat"
	KeyShowGdbComments   = "showGdbComments"
	KeyDisassemblyFlavor = "disassemblyFlavor"
)

// Settings is the flat display configuration.
type Settings struct {
	ListingCase       Case           `yaml:"listing-case" json:"listingCase"`
	RegisterNaming    RegisterNaming `yaml:"register-naming" json:"registerNaming"`
	SwapArguments     bool           `yaml:"swap-arguments" json:"swapArguments"`
	NumberFormat      NumberFormat   `yaml:"number-format" json:"numberFormat"`
	NegativeFormat    NegativeFormat `yaml:"negative-format" json:"negativeFormat"`
	NegativeWidth     int            `yaml:"negative-width" json:"negativeWidth"`
	CopyHexFormat     HexFormat      `yaml:"copy-hex-format" json:"copyHexFormat"`
	ShowGdbComments   bool           `yaml:"show-gdb-comments" json:"showGdbComments"`
	DisassemblyFlavor Flavor         `yaml:"disassembly-flavor" json:"disassemblyFlavor"`
}

// Default returns the settings used before anything is loaded.
func Default() Settings {
	return Settings{
		ListingCase:       CaseUpper,
		RegisterNaming:    NamingPlain,
		SwapArguments:     true,
		NumberFormat:      NumberAuto,
		NegativeFormat:    NegativeSigned,
		NegativeWidth:     64,
		CopyHexFormat:     HexRaw,
		ShowGdbComments:   true,
		DisassemblyFlavor: FlavorATT,
	}
}

// ErrInvalid is wrapped by every InvalidError.
var ErrInvalid = errors.New("invalid setting")

// InvalidError reports an unknown key or a value outside a key's domain.
type InvalidError struct {
	Key   string
	Value string
	// Allowed lists the accepted values, empty for unknown keys.
	Allowed []string
}

func (e *InvalidError) Error() string {
	if e.Allowed == nil {
		return fmt.Sprintf("unknown setting %q", e.Key)
	}
	return fmt.Sprintf("invalid value %q for %s (allowed: %v)", e.Value, e.Key, e.Allowed)
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }

type field struct {
	allowed []string
	get     func(s *Settings) string
	set     func(s *Settings, v string)
}

var boolValues = []string{"true", "false"}

var fields = map[string]field{
	KeyListingCase: {
		allowed: []string{string(CaseUpper), string(CaseLower)},
		get:     func(s *Settings) string { return string(s.ListingCase) },
		set:     func(s *Settings, v string) { s.ListingCase = Case(v) },
	},
	KeyRegisterNaming: {
		allowed: []string{string(NamingPlain), string(NamingPercent)},
		get:     func(s *Settings) string { return string(s.RegisterNaming) },
		set:     func(s *Settings, v string) { s.RegisterNaming = RegisterNaming(v) },
	},
	KeySwapArguments: {
		allowed: boolValues,
		get:     func(s *Settings) string { return strconv.FormatBool(s.SwapArguments) },
		set:     func(s *Settings, v string) { s.SwapArguments = v == "true" },
	},
	KeyNumberFormat: {
		allowed: []string{string(NumberAuto), string(NumberHexClean), string(NumberHexAsm), string(NumberDecimal)},
		get:     func(s *Settings) string { return string(s.NumberFormat) },
		set:     func(s *Settings, v string) { s.NumberFormat = NumberFormat(v) },
	},
	KeyNegativeFormat: {
		allowed: []string{string(NegativeSigned), string(NegativeUnsigned)},
		get:     func(s *Settings) string { return string(s.NegativeFormat) },
		set:     func(s *Settings, v string) { s.NegativeFormat = NegativeFormat(v) },
	},
	KeyNegativeWidth: {
		allowed: []string{"8", "16", "32", "64"},
		get:     func(s *Settings) string { return strconv.Itoa(s.NegativeWidth) },
		set: func(s *Settings, v string) {
			n, _ := strconv.Atoi(v)
			s.NegativeWidth = n
		},
	},
	KeyCopyHexFormat: {
		allowed: []string{string(HexRaw), string(HexSpace), string(HexPrefix), string(HexPython)},
		get:     func(s *Settings) string { return string(s.CopyHexFormat) },
		set:     func(s *Settings, v string) { s.CopyHexFormat = HexFormat(v) },
	},
	KeyShowGdbComments: {
		allowed: boolValues,
		get:     func(s *Settings) string { return strconv.FormatBool(s.ShowGdbComments) },
		set:     func(s *Settings, v string) { s.ShowGdbComments = v == "true" },
	},
	KeyDisassemblyFlavor: {
		allowed: []string{string(FlavorATT), string(FlavorIntel)},
		get:     func(s *Settings) string { return string(s.DisassemblyFlavor) },
		set:     func(s *Settings, v string) { s.DisassemblyFlavor = Flavor(v) },
	},
}

// Keys returns every setting key in sorted order.
func Keys() []string {
	r := make([]string, 0, len(fields))
	for k := range fields {
		r = append(r, k)
	}
	sort.Strings(r)
	return r
}

// Allowed returns the accepted values of key, nil for unknown keys.
func Allowed(key string) []string {
	f, ok := fields[key]
	if !ok {
		return nil
	}
	return append([]string(nil), f.allowed...)
}

// Get returns the string form of key.
func (s Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", &InvalidError{Key: key}
	}
	return f.get(&s), nil
}

// Set returns a copy of s with key changed to value. The receiver is never
// modified.
func (s Settings) Set(key, value string) (Settings, error) {
	f, ok := fields[key]
	if !ok {
		return s, &InvalidError{Key: key, Value: value}
	}
	for _, a := range f.allowed {
		if a == value {
			f.set(&s, value)
			return s, nil
		}
	}
	return s, &InvalidError{Key: key, Value: value, Allowed: append([]string(nil), f.allowed...)}
}

// Merge applies every valid entry of m, as returned by the backend, and
// returns the errors of the entries it skipped. Keys are applied in sorted
// order.
func (s Settings) Merge(m map[string]string) (Settings, []error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var errs []error
	for _, k := range keys {
		ns, err := s.Set(k, m[k])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s = ns
	}
	return s, errs
}

// Map returns the string form of every setting, for saving.
func (s Settings) Map() map[string]string {
	r := make(map[string]string, len(fields))
	for k, f := range fields {
		r[k] = f.get(&s)
	}
	return r
}

// Sanitize replaces any out-of-domain field with its default. Used on
// settings read from a config file.
func (s Settings) Sanitize() Settings {
	def := Default()
	for _, k := range Keys() {
		f := fields[k]
		if _, err := def.Set(k, f.get(&s)); err != nil {
			f.set(&s, f.get(&def))
		}
	}
	return s
}
