package orchestrator

import (
	"errors"

	"github.com/AaronLay10/FoleySim/internal/gate"
)

var (
	// ErrNotStarted is returned before Begin.
	ErrNotStarted = errors.New("session not started")
	// ErrGateClosed is returned by Advance while the active step is locked.
	ErrGateClosed = errors.New("gate closed")
	// ErrSkipUnavailable is returned by Skip on a step that cannot be skipped.
	ErrSkipUnavailable = errors.New("skip not available on this step")
	// ErrSessionComplete signals that Advance was called on the terminal
	// step and the host should end the session.
	ErrSessionComplete = errors.New("session complete")
	// ErrWrongStep rejects predicate evaluation or actions for a step that
	// is not active.
	ErrWrongStep = gate.ErrWrongStep
)

// SimulationState is the sequencer's position in the step table.
type SimulationState struct {
	CurrentStep int  `json:"current_step"`
	GateOpen    bool `json:"gate_open"`
}
