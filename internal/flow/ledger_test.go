package flow

import (
	"errors"
	"testing"

	"github.com/formbotkit/formbot/internal/models"
)

func TestLedgerCommitLifecycle(t *testing.T) {
	l := NewLedger()

	if err := l.SetPending("q1", "hello"); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}
	if v, ok := l.Pending("q1"); !ok || v != "hello" {
		t.Errorf("Pending() = %q, %v; want %q, true", v, ok, "hello")
	}

	value, err := l.Commit("q1")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if value != "hello" {
		t.Errorf("Commit() = %q, want %q", value, "hello")
	}
	if !l.IsAnswered("q1") {
		t.Error("IsAnswered() = false after commit")
	}
	if _, ok := l.Pending("q1"); ok {
		t.Error("Pending() still set after commit")
	}
}

func TestLedgerCommitWithoutPending(t *testing.T) {
	l := NewLedger()
	if _, err := l.Commit("q1"); !errors.Is(err, ErrNoPendingAnswer) {
		t.Errorf("Commit() error = %v, want ErrNoPendingAnswer", err)
	}
}

func TestLedgerCommittedAnswerIsImmutable(t *testing.T) {
	l := NewLedger()
	if err := l.SetPending("q1", "first"); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}
	if _, err := l.Commit("q1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := l.SetPending("q1", "second"); !errors.Is(err, ErrAlreadyAnswered) {
		t.Errorf("SetPending() after commit error = %v, want ErrAlreadyAnswered", err)
	}
	if _, err := l.Commit("q1"); !errors.Is(err, ErrAlreadyAnswered) {
		t.Errorf("second Commit() error = %v, want ErrAlreadyAnswered", err)
	}
	if got := l.Committed()["q1"]; got != "first" {
		t.Errorf("Committed()[q1] = %q, want %q", got, "first")
	}
}

func TestLedgerRevertRetainsValue(t *testing.T) {
	l := NewLedger()
	if err := l.SetPending("q1", "keep me"); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}
	if _, err := l.Commit("q1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	l.Revert("q1")
	if l.IsAnswered("q1") {
		t.Error("IsAnswered() = true after revert")
	}
	if v, ok := l.Pending("q1"); !ok || v != "keep me" {
		t.Errorf("Pending() after revert = %q, %v; want %q, true", v, ok, "keep me")
	}

	// A second revert with nothing committed is a no-op.
	l.Revert("q1")
	if v, _ := l.Pending("q1"); v != "keep me" {
		t.Errorf("Pending() after double revert = %q, want %q", v, "keep me")
	}
}

func TestLedgerIsComplete(t *testing.T) {
	elements := []models.Element{
		{ID: "greet", Kind: models.ElementTextBubble, Order: 0},
		{ID: "name", Kind: models.ElementTextInput, Order: 1},
		{ID: "mystery", Kind: "hologram-input", Order: 2},
		{ID: "score", Kind: models.ElementRatingInput, Order: 3},
	}

	l := NewLedger()
	if l.IsComplete(elements) {
		t.Error("IsComplete() = true with no answers")
	}

	mustCommit(t, l, "name", "Ada")
	if l.IsComplete(elements) {
		t.Error("IsComplete() = true with one of two interactive answered")
	}

	// The unsupported kind never counts toward completion.
	mustCommit(t, l, "score", "5")
	if !l.IsComplete(elements) {
		t.Error("IsComplete() = false with all interactive answered")
	}
}

func TestLedgerIsCompleteNoInteractive(t *testing.T) {
	elements := []models.Element{
		{ID: "greet", Kind: models.ElementTextBubble, Order: 0},
	}
	if !NewLedger().IsComplete(elements) {
		t.Error("IsComplete() = false for form with no interactive elements")
	}
}

func mustCommit(t *testing.T, l *Ledger, elementID, value string) {
	t.Helper()
	if err := l.SetPending(elementID, value); err != nil {
		t.Fatalf("SetPending(%s) error = %v", elementID, err)
	}
	if _, err := l.Commit(elementID); err != nil {
		t.Fatalf("Commit(%s) error = %v", elementID, err)
	}
}
