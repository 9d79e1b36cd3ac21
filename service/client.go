package service

import (
	"context"

	"github.com/cpuview/cpuview/service/api"
)

// Client is the request/response side of a debugger backend. All methods
// block until the backend answers or ctx is done. A response whose error
// field is set is returned as an *api.ServiceError.
type Client interface {
	// LoadSession (re)starts the target at path, or the last opened target
	// when path is empty, and returns its persisted comments and patches.
	LoadSession(ctx context.Context, path string) (*api.LoadSessionOut, error)
	// StopSession stops the current target.
	StopSession(ctx context.Context) error

	// Disassemble requests count instructions starting at start. The
	// returned instructions may be empty when the backend delivers the
	// window on the push channel.
	Disassemble(ctx context.Context, in api.DisassembleIn) (*api.DisassembleOut, error)
	// WriteMemory writes bytes and returns the backend's status.
	WriteMemory(ctx context.Context, in api.WriteMemoryIn) (*api.WriteMemoryOut, error)
	// RevertMemory restores the original byte at an address.
	RevertMemory(ctx context.Context, addr string) (*api.RevertMemoryOut, error)

	// SaveComment persists a user comment. An empty comment deletes it.
	SaveComment(ctx context.Context, addr, comment string) error
	// ResetDatabase clears the persisted analysis of the current target,
	// or of every target when all is set.
	ResetDatabase(ctx context.Context, all bool) (*api.StatusOut, error)

	GetSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error

	// Control sends one of the execution control commands.
	Control(ctx context.Context, cmd ControlCommand) error

	ListTargets(ctx context.Context) ([]api.TargetFile, error)
	GetVersion(ctx context.Context) (string, error)
}

// ControlCommand is an execution control command.
type ControlCommand string

const (
	Run      ControlCommand = "run"
	Pause    ControlCommand = "pause"
	StepInto ControlCommand = "step_into"
	StepOver ControlCommand = "step_over"
)
