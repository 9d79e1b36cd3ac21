package state

import (
	"sort"
	"strings"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/asmfmt"
	"github.com/cpuview/cpuview/pkg/settings"
)

// Annotations holds the user's comments. Comments are never stored empty.
type Annotations struct {
	comments map[address.Address]string
}

// SetUserComment sets the comment at a. Blank text deletes it.
func (an Annotations) SetUserComment(a address.Address, text string) Annotations {
	m := make(map[address.Address]string, len(an.comments)+1)
	for k, v := range an.comments {
		m[k] = v
	}
	if strings.TrimSpace(text) == "" {
		delete(m, a)
	} else {
		m[a] = text
	}
	return Annotations{comments: m}
}

// UserComment returns the user's comment at a.
func (an Annotations) UserComment(a address.Address) (string, bool) {
	c, ok := an.comments[a]
	return c, ok
}

// Effective returns the comment to display at a: the user's comment if
// there is one, otherwise the comment the disassembler embedded in rawText
// when s allows it.
func (an Annotations) Effective(a address.Address, rawText string, s settings.Settings) string {
	if c, ok := an.comments[a]; ok {
		return c
	}
	if !s.ShowGdbComments {
		return ""
	}
	_, inferred := asmfmt.SplitComment(rawText)
	return inferred
}

// Load replaces every comment with m. Keys that are not addresses are
// skipped and reported, blank comments are dropped.
func (an Annotations) Load(m map[string]string) (Annotations, []error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var errs []error
	out := make(map[address.Address]string, len(m))
	for _, k := range keys {
		a, err := address.Normalize(k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if strings.TrimSpace(m[k]) == "" {
			continue
		}
		out[a] = m[k]
	}
	return Annotations{comments: out}, errs
}

func (an Annotations) Len() int {
	return len(an.comments)
}
