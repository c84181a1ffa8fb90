package build

import (
	"fmt"
	"log/slog"
	"slices"
)

// Lifecycle state of a build run.
type State string

const (
	StatePending       State = "PENDING"
	StateProvisioning  State = "PROVISIONING"
	StateProvisioned   State = "PROVISIONED"
	StateFailed        State = "FAILED"
	StateExtracting    State = "EXTRACTING"
	StateDone          State = "DONE"
	StateExtractFailed State = "EXTRACT_FAILED"
	StateCleaned       State = "CLEANED"
)

// Allowed transitions. Any state may additionally move to [StateCleaned].
var transitions = map[State][]State{
	StatePending:      {StateProvisioning},
	StateProvisioning: {StateProvisioned, StateFailed},
	StateProvisioned:  {StateExtracting},
	StateExtracting:   {StateDone, StateExtractFailed},
}

// Tracks the state of one build run.
//
// A machine is owned by a single build and is not safe for concurrent use.
type machine struct {
	id    string
	state State
}

func newMachine(id string) *machine {
	return &machine{id: id, state: StatePending}
}

// Moves to next, or returns [ErrTransition] if the move is not allowed.
func (m *machine) to(next State) error {
	if next != StateCleaned && !slices.Contains(transitions[m.state], next) {
		slog.Error("illegal state transition", "id", m.id, "from", m.state, "to", next)
		return fmt.Errorf("%w: %s to %s", ErrTransition, m.state, next)
	}

	slog.Debug("state", "id", m.id, "from", m.state, "to", next)
	m.state = next
	return nil
}

// Returns the current state.
func (m *machine) current() State {
	return m.state
}
