package engine

import "fmt"

// State is a reconciliation task's lifecycle state.
type State string

const (
	StateUnstarted State = "UNSTARTED"
	StateResolving State = "RESOLVING"
	StateComparing State = "COMPARING"
	StateApplying  State = "APPLYING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// IsTerminal reports whether s is DONE or FAILED.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	if to == StateFailed {
		return !from.IsTerminal()
	}
	switch from {
	case StateUnstarted:
		return to == StateResolving
	case StateResolving:
		return to == StateComparing
	case StateComparing:
		return to == StateApplying
	case StateApplying:
		return to == StateDone
	default:
		return false
	}
}

// stateMachine tracks one task's state.
type stateMachine struct {
	state State
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateUnstarted}
}

// transition moves to the next state or returns an INVALID_TRANSITION error
// leaving the state unchanged.
func (m *stateMachine) transition(to State) error {
	if !isAllowedTransition(m.state, to) {
		return &TaskError{
			Code:    ErrCodeInvalidTransition,
			Message: fmt.Sprintf("%s -> %s", m.state, to),
		}
	}
	m.state = to
	return nil
}
