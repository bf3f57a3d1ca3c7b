// Package flow implements the conversational form runtime: which elements
// are visible, when answers are accepted, and when a session completes.
//
// This file defines the error taxonomy shared by the runtime and the editor.
package flow

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	// ErrNoPendingAnswer indicates a commit was requested for an element
	// with no pending value. Soft error: the caller reports it and moves on.
	ErrNoPendingAnswer = errors.New("no pending answer to commit")
	// ErrAlreadyAnswered indicates the element already has a committed
	// answer. Committed answers never change.
	ErrAlreadyAnswered = errors.New("element already has a committed answer")
	// ErrSessionClosed indicates the session was torn down; late results
	// must be discarded, not applied.
	ErrSessionClosed = errors.New("session is closed")
	// ErrElementNotVisible indicates an answer arrived for an element that
	// has not been revealed yet.
	ErrElementNotVisible = errors.New("element is not visible")
	// ErrStartNotAcknowledged indicates a commit had to be dropped because
	// the start event previously failed, so no session id will ever arrive.
	ErrStartNotAcknowledged = errors.New("start event was not acknowledged")
)

// ValidationError wraps a malformed-answer error. It is recovered locally
// and never sent to the store.
type ValidationError struct {
	ElementID string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer for element %s: %v", e.ElementID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError wraps an unknown form, share token, or element. Terminal:
// shown to the user, no retry.
type NotFoundError struct {
	Resource string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Resource, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// TransientWriteError wraps a failed remote write. Local state is reverted
// or flagged; the user may resubmit.
type TransientWriteError struct {
	Op  string
	Err error
}

func (e *TransientWriteError) Error() string {
	return fmt.Sprintf("%s write failed: %v", e.Op, e.Err)
}

func (e *TransientWriteError) Unwrap() error { return e.Err }

// ConsistencyError indicates server-returned state disagrees with local
// assumptions. It triggers a full reconciliation re-fetch.
type ConsistencyError struct {
	Reason string
	Err    error
}

func (e *ConsistencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("consistency violation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("consistency violation: %s", e.Reason)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }
