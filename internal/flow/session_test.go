package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/formbotkit/formbot/internal/models"
	"github.com/formbotkit/formbot/internal/store"
)

type submitCall struct {
	sessionID string
	elementID string
	value     string
	completed bool
}

// fakeRespondentStore records runtime events and can be told to fail or
// delay any of them.
type fakeRespondentStore struct {
	mu   sync.Mutex
	form *models.Form

	viewErr    error
	startErr   error
	submitErr  error
	startDelay time.Duration

	views   int
	starts  int
	submits []submitCall
}

func (f *fakeRespondentStore) GetFormByShareToken(token string) (*models.Form, error) {
	if token != "tok-good" {
		return nil, store.ErrShareTokenNotFound
	}
	return f.form, nil
}

func (f *fakeRespondentStore) RecordView(formID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.viewErr != nil {
		return f.viewErr
	}
	f.views++
	return nil
}

func (f *fakeRespondentStore) StartResponse(formID string) (string, error) {
	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts++
	return "sess-1", nil
}

func (f *fakeRespondentStore) SubmitAnswer(sessionID, elementID, value string, completed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submits = append(f.submits, submitCall{sessionID, elementID, value, completed})
	return nil
}

func (f *fakeRespondentStore) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func newFakeStore() *fakeRespondentStore {
	return &fakeRespondentStore{
		form: &models.Form{
			ID:   "form-1",
			Name: "Onboarding",
			Elements: []models.Element{
				{ID: "greet", FormID: "form-1", Kind: models.ElementTextBubble, Label: "Hi!", Order: 0},
				{ID: "name", FormID: "form-1", Kind: models.ElementTextInput, Label: "Your name?", Order: 1},
				{ID: "thanks", FormID: "form-1", Kind: models.ElementTextBubble, Label: "Thanks", Order: 2},
				{ID: "score", FormID: "form-1", Kind: models.ElementRatingInput, Label: "Rate us", Order: 3},
			},
		},
	}
}

func newTestSession(t *testing.T, fs *fakeRespondentStore) *Session {
	t.Helper()
	s, err := NewSession(fs, "tok-good", WithRevealDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func visibleIDs(s *Session) map[string]bool {
	out := make(map[string]bool)
	for _, el := range s.VisibleElements() {
		out[el.ID] = true
	}
	return out
}

func TestNewSessionRevealsFirstTwoGroups(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(t, fs)

	ids := visibleIDs(s)
	if !ids["greet"] || !ids["name"] {
		t.Errorf("visible = %v, want greet and name", ids)
	}
	if ids["thanks"] || ids["score"] {
		t.Errorf("visible = %v, later groups revealed too early", ids)
	}
	if fs.views != 1 {
		t.Errorf("views = %d, want 1", fs.views)
	}
	if s.Stage() != StageViewed {
		t.Errorf("Stage() = %v, want %v", s.Stage(), StageViewed)
	}
}

func TestNewSessionUnknownToken(t *testing.T) {
	fs := newFakeStore()
	_, err := NewSession(fs, "tok-bad")
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("NewSession() error = %v, want NotFoundError", err)
	}
	if !errors.Is(err, store.ErrShareTokenNotFound) {
		t.Errorf("NewSession() error = %v, want wrapped ErrShareTokenNotFound", err)
	}
}

func TestNewSessionRejectsDuplicateOrders(t *testing.T) {
	fs := newFakeStore()
	fs.form.Elements[2].Order = 1
	if _, err := NewSession(fs, "tok-good"); !errors.Is(err, models.ErrDuplicateOrder) {
		t.Errorf("NewSession() error = %v, want ErrDuplicateOrder", err)
	}
}

func TestNewSessionViewFailureIsNotFatal(t *testing.T) {
	fs := newFakeStore()
	fs.viewErr = errors.New("analytics down")
	s := newTestSession(t, fs)
	if s.Stage() != StageViewed {
		t.Errorf("Stage() = %v after failed view write, want %v", s.Stage(), StageViewed)
	}
}

func TestSubmitAnswerCommitsAndReveals(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(t, fs)

	if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if !s.IsAnswered("name") {
		t.Error("IsAnswered(name) = false after submit")
	}
	if v, ok := s.Answer("name"); !ok || v != "Ada" {
		t.Errorf("Answer(name) = %q, %v; want %q, true", v, ok, "Ada")
	}

	waitFor(t, "next group reveal", func() bool { return visibleIDs(s)["thanks"] })
	// The bubble at order 2 auto-advances to the rating at order 3.
	waitFor(t, "bubble auto-advance", func() bool { return visibleIDs(s)["score"] })

	waitFor(t, "start acknowledgement", func() bool { return s.ResponseSessionID() != "" })
	waitFor(t, "answer write", func() bool { return fs.submitCount() == 1 })
	fs.mu.Lock()
	call := fs.submits[0]
	fs.mu.Unlock()
	if call.sessionID != "sess-1" || call.elementID != "name" || call.value != "Ada" || call.completed {
		t.Errorf("submit call = %+v, want sess-1/name/Ada/false", call)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(t, fs)

	err := s.SubmitAnswer(context.Background(), "name", "")
	if !errors.Is(err, ErrNoPendingAnswer) {
		t.Errorf("SubmitAnswer(empty, no pending) error = %v, want ErrNoPendingAnswer", err)
	}

	waitFor(t, "reveal of rating", func() bool {
		if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil && !errors.Is(err, ErrAlreadyAnswered) {
			t.Fatalf("SubmitAnswer(name) error = %v", err)
		}
		return visibleIDs(s)["score"]
	})

	err = s.SubmitAnswer(context.Background(), "score", "11")
	var ve *ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, models.ErrInvalidRating) {
		t.Errorf("SubmitAnswer(rating 11) error = %v, want ValidationError wrapping ErrInvalidRating", err)
	}
	if s.IsAnswered("score") {
		t.Error("IsAnswered(score) = true after rejected answer")
	}
}

func TestSubmitAnswerNotVisible(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(t, fs)
	if err := s.SubmitAnswer(context.Background(), "score", "4"); !errors.Is(err, ErrElementNotVisible) {
		t.Errorf("SubmitAnswer(hidden) error = %v, want ErrElementNotVisible", err)
	}
	if err := s.SubmitAnswer(context.Background(), "ghost", "x"); err == nil {
		t.Error("SubmitAnswer(unknown) error = nil, want NotFoundError")
	}
}

func TestSubmitAnswerAnswerOnce(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(t, fs)

	if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if err := s.SubmitAnswer(context.Background(), "name", "Grace"); !errors.Is(err, ErrAlreadyAnswered) {
		t.Errorf("second SubmitAnswer() error = %v, want ErrAlreadyAnswered", err)
	}
	if v, _ := s.Answer("name"); v != "Ada" {
		t.Errorf("Answer(name) = %q after rejected resubmit, want %q", v, "Ada")
	}
}

func TestSessionCompletesWhenAllInteractiveAnswered(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(t, fs)

	if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil {
		t.Fatalf("SubmitAnswer(name) error = %v", err)
	}
	if s.IsFlowComplete() {
		t.Error("IsFlowComplete() = true with rating unanswered")
	}

	waitFor(t, "rating reveal", func() bool { return visibleIDs(s)["score"] })
	if err := s.SubmitAnswer(context.Background(), "score", "5"); err != nil {
		t.Fatalf("SubmitAnswer(score) error = %v", err)
	}
	waitFor(t, "completion latch", s.IsFlowComplete)
	if s.Stage() != StageCompleted {
		t.Errorf("Stage() = %v, want %v", s.Stage(), StageCompleted)
	}

	waitFor(t, "both writes", func() bool { return fs.submitCount() == 2 })
	fs.mu.Lock()
	last := fs.submits[len(fs.submits)-1]
	fs.mu.Unlock()
	if !last.completed {
		t.Error("final write completed flag = false, want true")
	}
}

func TestButtonInputForcesCompletion(t *testing.T) {
	fs := newFakeStore()
	fs.form.Elements = []models.Element{
		{ID: "greet", FormID: "form-1", Kind: models.ElementTextBubble, Label: "Hi!", Order: 0},
		{ID: "name", FormID: "form-1", Kind: models.ElementTextInput, Label: "Your name?", Order: 1},
		{ID: "done", FormID: "form-1", Kind: models.ElementButtonInput, Label: "Finish", Order: 2},
		{ID: "extra", FormID: "form-1", Kind: models.ElementTextInput, Label: "Skipped", Order: 3},
	}
	s := newTestSession(t, fs)

	if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil {
		t.Fatalf("SubmitAnswer(name) error = %v", err)
	}
	waitFor(t, "button reveal", func() bool { return visibleIDs(s)["done"] })

	if err := s.SubmitAnswer(context.Background(), "done", "finish please"); err == nil {
		t.Error("SubmitAnswer(button, wrong literal) error = nil, want ErrInvalidCompletion")
	}
	if err := s.SubmitAnswer(context.Background(), "done", models.ButtonCompletionValue); err != nil {
		t.Fatalf("SubmitAnswer(button) error = %v", err)
	}
	waitFor(t, "completion despite unanswered element", s.IsFlowComplete)
}

func TestCommitsQueuedUntilStartAck(t *testing.T) {
	fs := newFakeStore()
	fs.startDelay = 30 * time.Millisecond
	s := newTestSession(t, fs)

	if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	if got := fs.submitCount(); got != 0 {
		t.Errorf("submits = %d before start ack, want 0", got)
	}
	if !s.IsAnswered("name") {
		t.Error("IsAnswered(name) = false while queued; local commit must not wait for the ack")
	}

	waitFor(t, "queued flush", func() bool { return fs.submitCount() == 1 })
	fs.mu.Lock()
	call := fs.submits[0]
	fs.mu.Unlock()
	if call.sessionID != "sess-1" {
		t.Errorf("flushed write sessionID = %q, want sess-1", call.sessionID)
	}
}

func TestStartFailureDropsQueuedCommits(t *testing.T) {
	fs := newFakeStore()
	fs.startErr = errors.New("store down")
	fs.startDelay = 10 * time.Millisecond
	s := newTestSession(t, fs)

	if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}

	waitFor(t, "queued commit dropped", func() bool { return !s.IsAnswered("name") })
	if !errors.Is(s.ElementError("name"), ErrStartNotAcknowledged) {
		t.Errorf("ElementError(name) = %v, want ErrStartNotAcknowledged", s.ElementError("name"))
	}
	if v, ok := s.Answer("name"); !ok || v != "Ada" {
		t.Errorf("Answer(name) = %q, %v after drop; value must survive as pending", v, ok)
	}

	// Later commits fail fast: no session id will ever arrive.
	err := s.SubmitAnswer(context.Background(), "name", "")
	if !errors.Is(err, ErrStartNotAcknowledged) {
		t.Errorf("SubmitAnswer() after failed start error = %v, want ErrStartNotAcknowledged", err)
	}
}

func TestStartFailureDoesNotComplete(t *testing.T) {
	fs := newFakeStore()
	fs.form.Elements = []models.Element{
		{ID: "greet", FormID: "form-1", Kind: models.ElementTextBubble, Label: "Hi!", Order: 0},
		{ID: "name", FormID: "form-1", Kind: models.ElementTextInput, Label: "Your name?", Order: 1},
	}
	fs.startErr = errors.New("store down")
	fs.startDelay = 10 * time.Millisecond
	s := newTestSession(t, fs)

	// The only interactive answer would complete the flow, but its commit is
	// queued behind a start event that is going to fail.
	if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	waitFor(t, "queued commit dropped", func() bool { return !s.IsAnswered("name") })

	if s.IsFlowComplete() {
		t.Error("IsFlowComplete() = true while the only answer is unsubmitted")
	}
	if s.Stage() == StageCompleted {
		t.Errorf("Stage() = %v after failed start, want an earlier stage", s.Stage())
	}
	if got := fs.submitCount(); got != 0 {
		t.Errorf("submits = %d, want 0", got)
	}
}

func TestWriteFailureRevertsToPending(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(t, fs)

	waitFor(t, "start acknowledgement", func() bool {
		// Trigger the start event with the first answer of a fresh session.
		if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil && !errors.Is(err, ErrAlreadyAnswered) {
			t.Fatalf("SubmitAnswer(name) error = %v", err)
		}
		return s.ResponseSessionID() != ""
	})
	waitFor(t, "rating reveal", func() bool { return visibleIDs(s)["score"] })

	fs.mu.Lock()
	fs.submitErr = errors.New("write refused")
	fs.mu.Unlock()

	err := s.SubmitAnswer(context.Background(), "score", "4")
	var twe *TransientWriteError
	if !errors.As(err, &twe) {
		t.Fatalf("SubmitAnswer() error = %v, want TransientWriteError", err)
	}
	if s.IsAnswered("score") {
		t.Error("IsAnswered(score) = true after failed write")
	}
	if v, ok := s.Answer("score"); !ok || v != "4" {
		t.Errorf("Answer(score) = %q, %v; failed write must retain the value as pending", v, ok)
	}
	if s.ElementError("score") == nil {
		t.Error("ElementError(score) = nil after failed write")
	}

	fs.mu.Lock()
	fs.submitErr = nil
	fs.mu.Unlock()

	if err := s.SubmitAnswer(context.Background(), "score", ""); err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	if !s.IsAnswered("score") {
		t.Error("IsAnswered(score) = false after successful resubmit")
	}
	if s.ElementError("score") != nil {
		t.Errorf("ElementError(score) = %v after successful resubmit, want nil", s.ElementError("score"))
	}
}

func TestCloseDiscardsLateResults(t *testing.T) {
	fs := newFakeStore()
	fs.startDelay = 20 * time.Millisecond
	s := newTestSession(t, fs)

	if err := s.SubmitAnswer(context.Background(), "name", "Ada"); err != nil {
		t.Fatalf("SubmitAnswer() error = %v", err)
	}
	s.Close()

	if err := s.SubmitAnswer(context.Background(), "name", "x"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SubmitAnswer() after Close error = %v, want ErrSessionClosed", err)
	}

	// The start ack lands after Close; the queued commit must not be flushed.
	time.Sleep(60 * time.Millisecond)
	if got := fs.submitCount(); got != 0 {
		t.Errorf("submits = %d after Close, want 0", got)
	}
	if s.ResponseSessionID() != "" {
		t.Errorf("ResponseSessionID() = %q after Close, want empty", s.ResponseSessionID())
	}
}

func TestSetPendingValidates(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(t, fs)

	if err := s.SetPending("name", "Ada"); err != nil {
		t.Fatalf("SetPending() error = %v", err)
	}
	if v, ok := s.Answer("name"); !ok || v != "Ada" {
		t.Errorf("Answer(name) = %q, %v; want pending value", v, ok)
	}
	if s.IsAnswered("name") {
		t.Error("IsAnswered(name) = true for a pending-only value")
	}

	if err := s.SetPending("name", ""); !errors.Is(err, models.ErrEmptyAnswer) {
		t.Errorf("SetPending(empty) error = %v, want ErrEmptyAnswer", err)
	}
	if err := s.SetPending("score", "4"); !errors.Is(err, ErrElementNotVisible) {
		t.Errorf("SetPending(hidden) error = %v, want ErrElementNotVisible", err)
	}
}
