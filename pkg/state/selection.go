package state

import "github.com/cpuview/cpuview/pkg/address"

// Selection is an ordered set of selected addresses. Order is insertion
// order. Values are never modified in place; every change builds a new
// slice and set.
type Selection struct {
	addrs []address.Address
	set   map[address.Address]struct{}
	last  address.Address
}

// makeSelection builds a selection from addrs, which must not contain
// duplicates.
func makeSelection(addrs []address.Address, last address.Address) Selection {
	set := make(map[address.Address]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return Selection{addrs: addrs, set: set, last: last}
}

// Select replaces the selection with a.
func (sel Selection) Select(a address.Address) Selection {
	return makeSelection([]address.Address{a}, a)
}

// Toggle adds or removes a, leaving other members alone.
func (sel Selection) Toggle(a address.Address) Selection {
	if !sel.Contains(a) {
		out := make([]address.Address, len(sel.addrs), len(sel.addrs)+1)
		copy(out, sel.addrs)
		return makeSelection(append(out, a), a)
	}
	out := make([]address.Address, 0, len(sel.addrs)-1)
	for _, x := range sel.addrs {
		if x != a {
			out = append(out, x)
		}
	}
	return makeSelection(out, a)
}

// SelectRange replaces the selection with addrs. Duplicates are dropped.
// The last address becomes the last touched one.
func (sel Selection) SelectRange(addrs []address.Address) Selection {
	out := make([]address.Address, 0, len(addrs))
	seen := make(map[address.Address]bool, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	var last address.Address
	if len(out) > 0 {
		last = out[len(out)-1]
	}
	return makeSelection(out, last)
}

// Clear empties the selection and forgets the last touched address.
func (sel Selection) Clear() Selection {
	return Selection{}
}

// Contains reports whether a is selected.
func (sel Selection) Contains(a address.Address) bool {
	_, ok := sel.set[a]
	return ok
}

// First returns the earliest selected address still in the selection.
func (sel Selection) First() (address.Address, bool) {
	if len(sel.addrs) == 0 {
		return "", false
	}
	return sel.addrs[0], true
}

// Addresses returns a copy of the selected addresses.
func (sel Selection) Addresses() []address.Address {
	return append([]address.Address(nil), sel.addrs...)
}

func (sel Selection) LastTouched() address.Address {
	return sel.last
}

func (sel Selection) Len() int {
	return len(sel.addrs)
}

// RangeBetween returns the contiguous window addresses from one window
// address to another, inclusive, in window order. It returns nil if either
// address is not in the window.
func RangeBetween(window []Record, from, to address.Address) []address.Address {
	i, j := -1, -1
	for k := range window {
		if window[k].Address == from {
			i = k
		}
		if window[k].Address == to {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return nil
	}
	if i > j {
		i, j = j, i
	}
	out := make([]address.Address, 0, j-i+1)
	for k := i; k <= j; k++ {
		out = append(out, window[k].Address)
	}
	return out
}

// Extend selects the window range between the last touched address and to.
// The last touched address stays the pivot so repeated extensions grow or
// shrink the same range. Without a pivot in the window it selects to alone.
func (sel Selection) Extend(window []Record, to address.Address) Selection {
	r := RangeBetween(window, sel.last, to)
	if r == nil {
		return sel.Select(to)
	}
	return makeSelection(r, sel.last)
}

// Move selects the window instruction delta rows away from the last touched
// address (or the first window row when nothing was touched). The result is
// clamped to the window.
func (sel Selection) Move(window []Record, delta int) Selection {
	if len(window) == 0 {
		return sel
	}
	cur := -1
	for k := range window {
		if window[k].Address == sel.last {
			cur = k
			break
		}
	}
	if cur < 0 {
		return sel.Select(window[0].Address)
	}
	n := cur + delta
	if n < 0 {
		n = 0
	}
	if n >= len(window) {
		n = len(window) - 1
	}
	return sel.Select(window[n].Address)
}
