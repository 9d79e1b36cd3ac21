package dispatcher

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned by operations issued after Run returned.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrInvalidByte is returned for fill and edit values that are not
	// bytes.
	ErrInvalidByte = errors.New("invalid byte value")
	// ErrNoInstructionPointer is returned by JumpToIP when the registers do
	// not contain the instruction pointer.
	ErrNoInstructionPointer = errors.New("instruction pointer unknown")
	// ErrHistoryEmpty is returned by Back and Forward when there is nowhere
	// to go.
	ErrHistoryEmpty = errors.New("no history")
	// ErrNotInWindow is returned when a range end is not a window address.
	ErrNotInWindow = errors.New("address not in the instruction window")
	// ErrNothingToRevert is returned by Revert when no selected byte is
	// modified.
	ErrNothingToRevert = errors.New("no modified bytes selected")
)

// MalformedError reports a push payload or a response that could not be
// decoded. The state is left unchanged.
type MalformedError struct {
	// Kind is the event type or endpoint.
	Kind string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Kind, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
