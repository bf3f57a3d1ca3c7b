// Package flow implements the conversational form runtime.
//
// This file holds the Session: the per-respondent state machine combining the
// cursor, the ledger, and the lifecycle tracker, and driving the store.
package flow

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/formbotkit/formbot/internal/models"
	"github.com/formbotkit/formbot/internal/optimistic"
	"github.com/formbotkit/formbot/internal/store"
)

// DefaultRevealDelay is the pause between an element advancing and the next
// order group appearing, giving the conversation its message-by-message pace.
const DefaultRevealDelay = 500 * time.Millisecond

// RespondentStore is the slice of the store the runtime needs. Tests inject
// failing fakes here without implementing the full store surface.
type RespondentStore interface {
	GetFormByShareToken(token string) (*models.Form, error)
	RecordView(formID string) error
	StartResponse(formID string) (string, error)
	SubmitAnswer(sessionID, elementID, value string, completed bool) error
}

// Opts holds configuration options for a Session.
type Opts struct {
	// RevealDelay is the pause before revealing the next order group.
	RevealDelay time.Duration
}

// Option configures a Session.
type Option func(*Opts)

// WithRevealDelay overrides the reveal pacing delay. Tests shorten it.
func WithRevealDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.RevealDelay = d
	}
}

// queuedCommit is an answer committed locally before the start event was
// acknowledged. It is flushed once the session id arrives.
type queuedCommit struct {
	elementID string
	value     string
	completed bool
}

// Session is one respondent's pass through a shared form. Methods are safe
// for concurrent use; timer callbacks and deferred write results re-check
// liveness under the lock before touching state.
type Session struct {
	mu sync.Mutex

	st   RespondentStore
	form *models.Form

	ledger  *Ledger
	tracker *Tracker
	visible map[string]bool

	sessionID   string
	startFailed bool
	queued      []queuedCommit

	// writeErrs holds the last failed-write error per element, cleared on
	// the next commit attempt.
	writeErrs map[string]error

	revealDelay time.Duration
	timers      []*time.Timer
	closed      bool
}

// NewSession resolves a share token, validates the element list, reveals the
// first two order groups, and fires the view event. The view event is
// best-effort: a failed view write is logged and never retried, and does not
// block the respondent.
func NewSession(st RespondentStore, shareToken string, opts ...Option) (*Session, error) {
	cfg := Opts{RevealDelay: DefaultRevealDelay}
	for _, opt := range opts {
		opt(&cfg)
	}

	slog.Debug("NewSession resolving share token", "shareToken", shareToken)
	form, err := st.GetFormByShareToken(shareToken)
	if err != nil {
		slog.Error("NewSession share token lookup failed", "error", err, "shareToken", shareToken)
		return nil, &NotFoundError{Resource: "shared form", Err: err}
	}
	if err := models.ValidateElements(form.Elements); err != nil {
		slog.Error("NewSession form failed element validation", "error", err, "formID", form.ID)
		return nil, err
	}

	s := &Session{
		st:          st,
		form:        form,
		ledger:      NewLedger(),
		tracker:     NewTracker(),
		visible:     make(map[string]bool),
		writeErrs:   make(map[string]error),
		revealDelay: cfg.RevealDelay,
	}

	s.mu.Lock()
	s.reveal(InitialReveal(form.Elements))
	s.mu.Unlock()

	if s.tracker.MarkViewed() {
		if err := st.RecordView(form.ID); err != nil {
			slog.Warn("NewSession view event write failed", "error", err, "formID", form.ID)
		}
	}

	slog.Info("NewSession ready", "formID", form.ID, "elements", len(form.Elements))
	return s, nil
}

// Form returns the resolved form.
func (s *Session) Form() *models.Form { return s.form }

// Stage returns the session's lifecycle stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Stage()
}

// ResponseSessionID returns the store session id, empty until the start
// event has been acknowledged.
func (s *Session) ResponseSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// VisibleElements returns the revealed elements in ascending order.
func (s *Session) VisibleElements() []models.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Element
	for _, el := range s.form.Elements {
		if s.visible[el.ID] {
			out = append(out, el)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Answer returns the value shown for an element: the committed answer if one
// exists, otherwise the pending one.
func (s *Session) Answer(elementID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.ledger.committed[elementID]; ok {
		return v, true
	}
	v, ok := s.ledger.pending[elementID]
	return v, ok
}

// IsAnswered reports whether the element has a committed answer.
func (s *Session) IsAnswered(elementID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.IsAnswered(elementID)
}

// CommittedAnswers returns a copy of the committed answers by element id.
func (s *Session) CommittedAnswers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Committed()
}

// IsFlowComplete reports whether the completion event has fired, either by
// every interactive element being answered or by a completion button.
func (s *Session) IsFlowComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Completed()
}

// ElementError returns the last failed-write error for an element, if any.
func (s *Session) ElementError(elementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErrs[elementID]
}

// SetPending validates and stages an answer without committing it. The value
// is local only; nothing is written to the store.
func (s *Session) SetPending(elementID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	el := s.elementByID(elementID)
	if el == nil {
		return &NotFoundError{Resource: "element", Err: store.ErrElementNotFound}
	}
	if !s.visible[elementID] {
		return ErrElementNotVisible
	}
	if err := models.ValidateAnswer(el.Kind, value); err != nil {
		slog.Debug("SetPending rejected invalid answer", "error", err, "elementID", elementID)
		return &ValidationError{ElementID: elementID, Err: err}
	}
	return s.ledger.SetPending(elementID, value)
}

// SubmitAnswer validates, commits, and writes an answer for a visible
// element. A non-empty value stages it first; an empty value commits
// whatever is already pending. The local commit and the next-group reveal
// happen regardless of the write outcome; a failed write reverts the answer
// to pending and records a per-element error so the respondent can resubmit.
//
// The first commit also fires the start event. Until its acknowledgement
// returns a session id, answer writes are queued rather than sent.
func (s *Session) SubmitAnswer(ctx context.Context, elementID, value string) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	el := s.elementByID(elementID)
	if el == nil {
		s.mu.Unlock()
		return &NotFoundError{Resource: "element", Err: store.ErrElementNotFound}
	}
	if !s.visible[elementID] {
		s.mu.Unlock()
		return ErrElementNotVisible
	}
	if value != "" {
		if err := models.ValidateAnswer(el.Kind, value); err != nil {
			s.mu.Unlock()
			slog.Debug("SubmitAnswer rejected invalid answer", "error", err, "elementID", elementID)
			return &ValidationError{ElementID: elementID, Err: err}
		}
		if err := s.ledger.SetPending(elementID, value); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	committed, err := s.ledger.Commit(elementID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.writeErrs, elementID)

	// A completion button ends the flow regardless of remaining elements.
	// The completed stage itself latches only once the completing answer is
	// written; until then the store has recorded nothing final.
	completed := el.Kind == models.ElementButtonInput || s.ledger.IsComplete(s.form.Elements)
	s.maybeStart()
	s.scheduleAdvance(elementID)

	if s.sessionID == "" {
		if s.startFailed {
			s.ledger.Revert(elementID)
			s.writeErrs[elementID] = ErrStartNotAcknowledged
			s.mu.Unlock()
			slog.Error("SubmitAnswer dropped, start event was not acknowledged", "elementID", elementID)
			return &TransientWriteError{Op: "submit answer", Err: ErrStartNotAcknowledged}
		}
		s.queued = append(s.queued, queuedCommit{elementID: elementID, value: committed, completed: completed})
		s.mu.Unlock()
		slog.Debug("SubmitAnswer queued awaiting session id", "elementID", elementID)
		return nil
	}
	sessionID := s.sessionID
	s.mu.Unlock()

	return s.writeCommit(ctx, sessionID, queuedCommit{elementID: elementID, value: committed, completed: completed})
}

// writeCommit performs the remote half of an already-applied commit. On
// failure it reverts the commit unless the session closed while the write was
// in flight; on success it latches the completed stage for a completing
// answer.
func (s *Session) writeCommit(ctx context.Context, sessionID string, qc queuedCommit) error {
	err := optimistic.Do(ctx, optimistic.Mutation{
		Name: "answer",
		Write: func(ctx context.Context) error {
			return s.st.SubmitAnswer(sessionID, qc.elementID, qc.value, qc.completed)
		},
		Revert: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.closed {
				slog.Debug("Discarding write failure for closed session", "elementID", qc.elementID)
				return
			}
			s.ledger.Revert(qc.elementID)
		},
	})
	if err != nil {
		werr := &TransientWriteError{Op: "submit answer", Err: err}
		s.mu.Lock()
		if !s.closed {
			s.writeErrs[qc.elementID] = werr
		}
		s.mu.Unlock()
		return werr
	}
	if qc.completed {
		s.mu.Lock()
		if !s.closed {
			s.tracker.MarkCompleted()
		}
		s.mu.Unlock()
	}
	return nil
}

// maybeStart fires the start event on the first commit. The store call runs
// in its own goroutine so the respondent is never blocked on it; queued
// commits are flushed once the session id arrives.
func (s *Session) maybeStart() {
	if !s.tracker.MarkStarted() {
		return
	}
	formID := s.form.ID
	go func() {
		sessionID, err := s.st.StartResponse(formID)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			slog.Debug("Discarding start acknowledgement for closed session", "formID", formID)
			return
		}
		if err != nil {
			s.startFailed = true
			dropped := s.queued
			s.queued = nil
			for _, qc := range dropped {
				s.ledger.Revert(qc.elementID)
				s.writeErrs[qc.elementID] = ErrStartNotAcknowledged
			}
			s.mu.Unlock()
			slog.Error("Start event failed, dropping queued commits", "error", err, "formID", formID, "dropped", len(dropped))
			return
		}
		s.sessionID = sessionID
		flush := s.queued
		s.queued = nil
		s.mu.Unlock()

		slog.Info("Start event acknowledged", "formID", formID, "sessionID", sessionID)
		for _, qc := range flush {
			if err := s.writeCommit(context.Background(), sessionID, qc); err != nil {
				slog.Error("Queued commit flush failed", "error", err, "elementID", qc.elementID)
			}
		}
	}()
}

// Close tears the session down. Pending timers are stopped and any write or
// start results still in flight are discarded when they land.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	slog.Debug("Session closed", "formID", s.form.ID)
}

// reveal marks ids visible and schedules auto-advance for presentational
// elements so bubbles cascade without interaction. Caller holds s.mu.
func (s *Session) reveal(ids []string) {
	for _, id := range ids {
		if s.visible[id] {
			continue
		}
		s.visible[id] = true
		slog.Debug("Element revealed", "elementID", id)
		if el := s.elementByID(id); el != nil && models.IsPresentational(el.Kind) {
			s.scheduleAdvance(id)
		}
	}
}

// scheduleAdvance arms the reveal-delay timer for the next order group after
// the given element. Caller holds s.mu.
func (s *Session) scheduleAdvance(elementID string) {
	t := time.AfterFunc(s.revealDelay, func() {
		s.advanceFrom(elementID)
	})
	s.timers = append(s.timers, t)
}

// advanceFrom reveals the order group after the given element. Runs from a
// timer, so it re-checks liveness under the lock.
func (s *Session) advanceFrom(elementID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.visible[elementID] {
		return
	}
	s.reveal(NextReveal(s.form.Elements, s.visible, elementID))
}

// elementByID returns the form element with the given id, or nil.
func (s *Session) elementByID(id string) *models.Element {
	for i := range s.form.Elements {
		if s.form.Elements[i].ID == id {
			return &s.form.Elements[i]
		}
	}
	return nil
}
