package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.True(t, StateSuccess.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
	assert.False(t, StateRetrying.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]State{
		{StatePending, StateRunning},
		{StatePending, StateFailed},
		{StateRunning, StateSuccess},
		{StateRunning, StateRetrying},
		{StateRunning, StateFailed},
		{StateRetrying, StateRunning},
		{StateRetrying, StateFailed},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]State{
		{StatePending, StateSuccess},
		{StatePending, StateRetrying},
		{StateSuccess, StateRunning},
		{StateSuccess, StateFailed},
		{StateFailed, StateRunning},
		{StateFailed, StatePending},
		{StateRetrying, StateSuccess},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}
