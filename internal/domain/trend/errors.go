package trend

import (
	"errors"
	"fmt"
)

// Error taxonomy for the scoring engine. Callers discriminate with
// errors.Is; transient storage failures are wrapped in TransientError
// so the task orchestrator can tell retryable from terminal.
var (
	// ErrInsufficientData means a keyword has no posts to score.
	// Recovered locally: the caller decides between a low-confidence
	// placeholder and an explicit "no data" result. Never a crash.
	ErrInsufficientData = errors.New("insufficient data: keyword has no posts")

	// ErrInvalidKeyword means the keyword id is unknown. Surfaced to
	// the caller immediately, never queued as a task.
	ErrInvalidKeyword = errors.New("unknown keyword")

	// ErrComputeTimeout means a computation exceeded its wall-clock
	// budget. Not retryable: a systematically oversized corpus would
	// only time out again.
	ErrComputeTimeout = errors.New("computation timed out")
)

// TransientError marks an I/O hiccup (cache, corpus reader, metrics
// store) that the task orchestrator may retry with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable under the orchestrator's
// backoff policy.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
