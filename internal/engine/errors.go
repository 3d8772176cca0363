package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStopped is returned by calls made after the engine shut down.
var ErrStopped = errors.New("engine stopped")

// GoalNotFoundError reports an operation against an unknown goal id.
type GoalNotFoundError struct {
	GoalID string
}

func (e *GoalNotFoundError) Error() string {
	return fmt.Sprintf("goal %s not found", e.GoalID)
}

// GoalFinishedError reports a cancellation attempt against a goal that
// already reached a terminal state.
type GoalFinishedError struct {
	GoalID string
	State  GoalState
}

func (e *GoalFinishedError) Error() string {
	return fmt.Sprintf("goal %s already finished (%s)", e.GoalID, e.State)
}

// RetryClass indicates whether a failed step should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"
	RetryClassNonRetryable RetryClass = "non_retryable"
)

// ClassifyToolError decides retryability of a tool failure. Tools marked
// non-retryable are never retried; otherwise transient-looking failures
// (network, 5xx, lock contention) get one more attempt.
func ClassifyToolError(err error, toolRetryable bool) RetryClass {
	if err == nil || !toolRetryable {
		return RetryClassNonRetryable
	}

	errStr := strings.ToLower(err.Error())

	// Network/timeout errors - retryable
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary failure") {
		return RetryClassRetryable
	}

	// Server errors (5xx) - retryable
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "service unavailable") {
		return RetryClassRetryable
	}

	// OS/file system contention - retryable
	if strings.Contains(errStr, "file locked") ||
		strings.Contains(errStr, "resource temporarily unavailable") ||
		strings.Contains(errStr, "temporary") {
		return RetryClassRetryable
	}

	// Deterministic failures - non-retryable
	return RetryClassNonRetryable
}
