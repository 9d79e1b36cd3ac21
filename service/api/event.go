package api

import (
	"encoding/json"
	"fmt"
)

// Push event types.
const (
	EventStatus        = "status"
	EventThreadUpdate  = "thread-update"
	EventRegisters     = "registers"
	EventRegisterNames = "register_names"
	EventDisassembly   = "disassembly"
	EventProgress      = "progress"
	EventSystemLog     = "system_log"
	EventError         = "error"
	EventTargetLog     = "target_log"
)

// Event is a message received on the push channel. Payload is decoded by
// the receiver according to Type:
//
//	status          string: IDLE, RUNNING, PAUSED, EXITED
//	thread-update   string or number
//	registers       []Register
//	register_names  []string
//	disassembly     []Instruction or Window
//	progress        Progress
//	system_log      string
//	error           string
//	target_log      string
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent encodes payload into an event of the given type.
func NewEvent(typ string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s event: %w", typ, err)
	}
	return Event{Type: typ, Payload: raw}, nil
}

// ServiceError is a failure the backend reported in the error field of an
// otherwise successful response.
type ServiceError struct {
	// Op is the endpoint that failed.
	Op      string
	Message string
	Details string
}

func (e *ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}
