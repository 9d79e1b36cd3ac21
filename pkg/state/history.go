package state

import "github.com/cpuview/cpuview/pkg/address"

// History is the back/forward navigation stack.
type History struct {
	past   []address.Address
	future []address.Address
}

// Push records a as a place to come back to. Adjacent repeats are dropped.
// Pushing always discards the forward stack.
func (h History) Push(a address.Address) History {
	if a == "" {
		return h
	}
	past := h.past
	if len(past) == 0 || past[len(past)-1] != a {
		past = append(past[:len(past):len(past)], a)
	}
	return History{past: past}
}

// Back returns the anchor to go back to from current. Entries equal to
// current are skipped. The third return value is false, and h is returned
// unchanged, when there is nowhere to go.
func (h History) Back(current address.Address) (History, address.Address, bool) {
	past, prev, ok := pop(h.past, current)
	if !ok {
		return h, "", false
	}
	return History{past: past, future: push(h.future, current)}, prev, true
}

// Forward is the mirror of Back.
func (h History) Forward(current address.Address) (History, address.Address, bool) {
	future, next, ok := pop(h.future, current)
	if !ok {
		return h, "", false
	}
	return History{past: push(h.past, current), future: future}, next, true
}

func pop(stack []address.Address, current address.Address) ([]address.Address, address.Address, bool) {
	n := len(stack)
	for n > 0 && stack[n-1] == current {
		n--
	}
	if n == 0 {
		return stack, "", false
	}
	return stack[: n-1 : n-1], stack[n-1], true
}

func push(stack []address.Address, a address.Address) []address.Address {
	if a == "" {
		return stack
	}
	return append(stack[:len(stack):len(stack)], a)
}

// Clear empties both stacks.
func (h History) Clear() History {
	return History{}
}

// Past returns a copy of the back stack, oldest first.
func (h History) Past() []address.Address {
	return append([]address.Address(nil), h.past...)
}

// Future returns a copy of the forward stack, most distant first.
func (h History) Future() []address.Address {
	return append([]address.Address(nil), h.future...)
}
