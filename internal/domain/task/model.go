package task

import (
	"time"
)

// State is the lifecycle state of a recomputation task.
type State string

const (
	StatePending  State = "PENDING"
	StateRunning  State = "RUNNING"
	StateSuccess  State = "SUCCESS"
	StateFailed   State = "FAILED"
	StateRetrying State = "RETRYING"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Task tracks one asynchronous trend recomputation for a keyword.
// At most one non-terminal Task exists per keyword at any time; the
// orchestrator enforces this single-flight invariant.
type Task struct {
	ID         string     `json:"task_id"`
	KeywordID  string     `json:"keyword_id"`
	State      State      `json:"state"`
	Attempt    int        `json:"attempt"`
	LastError  string     `json:"last_error,omitempty"`
	// Cause is the terminal failure as an error value, kept so callers
	// can discriminate with errors.Is. LastError carries the same text
	// for serialization.
	Cause      error      `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// validTransitions mirrors the orchestrator's state machine. Kept in
// the domain so stores and tests can validate histories without
// importing the orchestrator.
var validTransitions = map[State][]State{
	StatePending:  {StateRunning, StateFailed},
	StateRunning:  {StateSuccess, StateRetrying, StateFailed},
	StateRetrying: {StateRunning, StateFailed},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
