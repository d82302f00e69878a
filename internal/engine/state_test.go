package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	m := newStateMachine()
	for _, s := range []State{StateResolving, StateComparing, StateApplying, StateDone} {
		require.NoError(t, m.transition(s))
	}
	assert.Equal(t, StateDone, m.state)
	assert.True(t, m.state.IsTerminal())
}

func TestStateMachineFailsFromAnyNonTerminal(t *testing.T) {
	for _, from := range []State{StateUnstarted, StateResolving, StateComparing, StateApplying} {
		m := &stateMachine{state: from}
		require.NoError(t, m.transition(StateFailed), from)
	}
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateUnstarted, StateApplying},
		{StateResolving, StateDone},
		{StateComparing, StateResolving},
		{StateDone, StateFailed},
		{StateFailed, StateResolving},
		{StateDone, StateResolving},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := &stateMachine{state: tt.from}
			err := m.transition(tt.to)
			require.Error(t, err)
			assert.True(t, IsInvalidTransition(err))
			assert.Equal(t, tt.from, m.state, "state must not change")
		})
	}
}
