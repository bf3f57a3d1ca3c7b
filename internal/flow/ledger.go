// Package flow implements the conversational form runtime.
//
// This file holds the response ledger: the split between answers the
// respondent has typed (pending) and answers acknowledged by the store
// (committed). The ledger is validation-agnostic; answer shapes are checked
// before values reach it.
package flow

import (
	"log/slog"

	"github.com/formbotkit/formbot/internal/models"
)

// Ledger tracks pending and committed answers for one session. A committed
// answer never re-enters the pending partition and never changes.
type Ledger struct {
	pending   map[string]string
	committed map[string]string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		pending:   make(map[string]string),
		committed: make(map[string]string),
	}
}

// SetPending records a locally entered, not-yet-submitted value,
// overwriting any previous pending value for the element. Setting a pending
// value on an already-committed element is rejected.
func (l *Ledger) SetPending(elementID, value string) error {
	if _, ok := l.committed[elementID]; ok {
		slog.Debug("Ledger SetPending rejected, already committed", "elementID", elementID)
		return ErrAlreadyAnswered
	}
	l.pending[elementID] = value
	return nil
}

// Pending returns the pending value for an element, if any.
func (l *Ledger) Pending(elementID string) (string, bool) {
	v, ok := l.pending[elementID]
	return v, ok
}

// Commit moves an element's pending value to the committed partition and
// returns it for the remote write. Without a pending value this is a no-op
// reporting ErrNoPendingAnswer.
func (l *Ledger) Commit(elementID string) (string, error) {
	if _, ok := l.committed[elementID]; ok {
		return "", ErrAlreadyAnswered
	}
	value, ok := l.pending[elementID]
	if !ok {
		slog.Debug("Ledger Commit with no pending value", "elementID", elementID)
		return "", ErrNoPendingAnswer
	}
	delete(l.pending, elementID)
	l.committed[elementID] = value
	slog.Debug("Ledger Commit succeeded", "elementID", elementID)
	return value, nil
}

// Revert moves a committed value back to pending after a failed remote
// write, retaining it for resubmission.
func (l *Ledger) Revert(elementID string) {
	value, ok := l.committed[elementID]
	if !ok {
		return
	}
	delete(l.committed, elementID)
	l.pending[elementID] = value
	slog.Debug("Ledger Revert to pending", "elementID", elementID)
}

// IsAnswered reports whether the element has a committed answer.
func (l *Ledger) IsAnswered(elementID string) bool {
	_, ok := l.committed[elementID]
	return ok
}

// Committed returns a copy of the committed answers.
func (l *Ledger) Committed() map[string]string {
	out := make(map[string]string, len(l.committed))
	for k, v := range l.committed {
		out[k] = v
	}
	return out
}

// IsComplete reports whether every interactive element in the list has a
// committed answer. Presentational and unsupported elements are excluded
// from both sides of the count.
func (l *Ledger) IsComplete(elements []models.Element) bool {
	total, answered := 0, 0
	for _, el := range elements {
		if !models.IsInteractive(el.Kind) {
			continue
		}
		total++
		if l.IsAnswered(el.ID) {
			answered++
		}
	}
	return answered == total
}
