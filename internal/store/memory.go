// Package store provides storage backends for FormBot.
//
// This file implements the in-memory store used by tests and by deployments
// without a database DSN.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formbotkit/formbot/internal/models"
	"github.com/formbotkit/formbot/internal/util"
)

type formRecord struct {
	form      models.Form
	elements  []models.Element
	analytics models.AnalyticsSummary
}

// InMemoryStore is a Store backed by process memory. State does not survive
// restarts.
type InMemoryStore struct {
	mu          sync.Mutex
	forms       map[string]*formRecord
	shareTokens map[string]string // token -> form id
	sessions    map[string]*models.FormResponse
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("Creating InMemoryStore")
	return &InMemoryStore{
		forms:       make(map[string]*formRecord),
		shareTokens: make(map[string]string),
		sessions:    make(map[string]*models.FormResponse),
	}
}

// CreateForm stores a new form and its elements, assigning ids as needed.
func (s *InMemoryStore) CreateForm(form models.Form) (models.Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	form.CreatedAt = time.Now()

	elements := make([]models.Element, len(form.Elements))
	copy(elements, form.Elements)
	for i := range elements {
		if needsID(elements[i].ID) {
			elements[i].ID = uuid.NewString()
		}
		elements[i].FormID = form.ID
	}
	if err := models.ValidateElements(elements); err != nil {
		slog.Error("InMemoryStore CreateForm invalid elements", "error", err, "formID", form.ID)
		return models.Form{}, err
	}

	form.Elements = nil
	s.forms[form.ID] = &formRecord{
		form:      form,
		elements:  elements,
		analytics: models.AnalyticsSummary{FormID: form.ID},
	}
	slog.Debug("InMemoryStore CreateForm succeeded", "formID", form.ID, "elements", len(elements))

	form.Elements = elements
	return form, nil
}

// GetForm returns the form with its elements sorted by ascending order.
func (s *InMemoryStore) GetForm(formID string) (*models.Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		return nil, ErrFormNotFound
	}
	form := rec.form
	form.Elements = sortedElements(rec.elements)
	return &form, nil
}

// CreateShareLink returns the form's share token, creating one on first use.
func (s *InMemoryStore) CreateShareLink(formID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		slog.Error("InMemoryStore CreateShareLink form not found", "formID", formID)
		return "", ErrFormNotFound
	}
	if rec.form.ShareToken == "" {
		rec.form.ShareToken = uuid.NewString()
		s.shareTokens[rec.form.ShareToken] = formID
		slog.Info("InMemoryStore CreateShareLink created token", "formID", formID)
	}
	return rec.form.ShareToken, nil
}

// GetFormByShareToken resolves a share token to its form.
func (s *InMemoryStore) GetFormByShareToken(token string) (*models.Form, error) {
	s.mu.Lock()
	formID, ok := s.shareTokens[token]
	s.mu.Unlock()
	if !ok {
		slog.Debug("InMemoryStore GetFormByShareToken not found")
		return nil, ErrShareTokenNotFound
	}
	return s.GetForm(formID)
}

// RecordView increments the form's view counter.
func (s *InMemoryStore) RecordView(formID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		return ErrFormNotFound
	}
	rec.analytics.ViewCount++
	slog.Debug("InMemoryStore RecordView succeeded", "formID", formID, "views", rec.analytics.ViewCount)
	return nil
}

// StartResponse creates a response session and increments the start counter.
func (s *InMemoryStore) StartResponse(formID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		slog.Error("InMemoryStore StartResponse form not found", "formID", formID)
		return "", ErrFormNotFound
	}

	now := time.Now()
	session := &models.FormResponse{
		ID:        uuid.NewString(),
		FormID:    formID,
		Answers:   make(map[string]string),
		Status:    models.ResponseStatusPartial,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.sessions[session.ID] = session
	rec.analytics.StartCount++
	slog.Debug("InMemoryStore StartResponse succeeded", "formID", formID, "sessionID", session.ID)
	return session.ID, nil
}

// SubmitAnswer records one committed answer on a session. The completion
// counter increments only on the first transition to completed.
func (s *InMemoryStore) SubmitAnswer(sessionID, elementID, value string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		slog.Error("InMemoryStore SubmitAnswer session not found", "sessionID", sessionID)
		return ErrSessionNotFound
	}
	session.Answers[elementID] = value
	session.UpdatedAt = time.Now()
	if completed && session.Status != models.ResponseStatusCompleted {
		session.Status = models.ResponseStatusCompleted
		if rec, ok := s.forms[session.FormID]; ok {
			rec.analytics.CompletionCount++
		}
	}
	slog.Debug("InMemoryStore SubmitAnswer succeeded", "sessionID", sessionID, "elementID", elementID, "completed", completed)
	return nil
}

// GetAnalyticsSummary returns the form's aggregate counters.
func (s *InMemoryStore) GetAnalyticsSummary(formID string) (models.AnalyticsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		return models.AnalyticsSummary{}, ErrFormNotFound
	}
	return rec.analytics, nil
}

// ListResponses returns a page of the form's response sessions, newest first,
// optionally filtered by status.
func (s *InMemoryStore) ListResponses(formID string, page, pageSize int, status models.ResponseStatus) ([]models.FormResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forms[formID]; !ok {
		return nil, ErrFormNotFound
	}

	var matched []models.FormResponse
	for _, session := range s.sessions {
		if session.FormID != formID {
			continue
		}
		if status != "" && session.Status != status {
			continue
		}
		matched = append(matched, *session)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []models.FormResponse{}, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// ListElements returns the form's elements sorted by ascending order.
func (s *InMemoryStore) ListElements(formID string) ([]models.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		return nil, ErrFormNotFound
	}
	return sortedElements(rec.elements), nil
}

// CreateElements appends new elements to the form, assigning authoritative
// ids. Provisional ids from optimistic creation are replaced. The combined
// element list must keep unique order values.
func (s *InMemoryStore) CreateElements(formID string, elements []models.Element) ([]models.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		slog.Error("InMemoryStore CreateElements form not found", "formID", formID)
		return nil, ErrFormNotFound
	}

	created := make([]models.Element, len(elements))
	copy(created, elements)
	for i := range created {
		if needsID(created[i].ID) {
			created[i].ID = uuid.NewString()
		}
		created[i].FormID = formID
	}

	combined := append(sortedElements(rec.elements), created...)
	if err := models.ValidateElements(combined); err != nil {
		slog.Error("InMemoryStore CreateElements invalid elements", "error", err, "formID", formID)
		return nil, err
	}

	rec.elements = append(rec.elements, created...)
	slog.Debug("InMemoryStore CreateElements succeeded", "formID", formID, "count", len(created))
	return created, nil
}

// UpdateElement applies a partial update and returns the updated element.
func (s *InMemoryStore) UpdateElement(formID, elementID string, patch models.ElementPatch) (*models.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		return nil, ErrFormNotFound
	}
	for i := range rec.elements {
		if rec.elements[i].ID != elementID {
			continue
		}
		updated := rec.elements[i]
		if patch.Value != nil {
			updated.Value = *patch.Value
		}
		if patch.Required != nil {
			updated.Required = *patch.Required
		}
		if patch.Order != nil {
			updated.Order = *patch.Order
			for j := range rec.elements {
				if j != i && rec.elements[j].Order == updated.Order {
					slog.Error("InMemoryStore UpdateElement order collision", "formID", formID, "elementID", elementID, "order", updated.Order)
					return nil, models.ErrDuplicateOrder
				}
			}
		}
		rec.elements[i] = updated
		slog.Debug("InMemoryStore UpdateElement succeeded", "formID", formID, "elementID", elementID)
		result := updated
		return &result, nil
	}
	slog.Error("InMemoryStore UpdateElement element not found", "formID", formID, "elementID", elementID)
	return nil, ErrElementNotFound
}

// DeleteElement removes an element from the form.
func (s *InMemoryStore) DeleteElement(formID, elementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		return ErrFormNotFound
	}
	for i := range rec.elements {
		if rec.elements[i].ID == elementID {
			rec.elements = append(rec.elements[:i], rec.elements[i+1:]...)
			slog.Debug("InMemoryStore DeleteElement succeeded", "formID", formID, "elementID", elementID)
			return nil
		}
	}
	return ErrElementNotFound
}

// ReorderElements applies a full new ordering in one step. The id list must
// be a permutation of the form's current element ids; orders are rewritten
// to the positions 0..n-1.
func (s *InMemoryStore) ReorderElements(formID string, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[formID]
	if !ok {
		return ErrFormNotFound
	}
	if len(orderedIDs) != len(rec.elements) {
		slog.Error("InMemoryStore ReorderElements id count mismatch", "formID", formID, "got", len(orderedIDs), "want", len(rec.elements))
		return ErrReorderMismatch
	}

	byID := make(map[string]models.Element, len(rec.elements))
	for _, el := range rec.elements {
		byID[el.ID] = el
	}
	reordered := make([]models.Element, 0, len(orderedIDs))
	for position, id := range orderedIDs {
		el, ok := byID[id]
		if !ok {
			slog.Error("InMemoryStore ReorderElements unknown id", "formID", formID, "elementID", id)
			return ErrReorderMismatch
		}
		delete(byID, id)
		el.Order = position
		reordered = append(reordered, el)
	}

	rec.elements = reordered
	slog.Debug("InMemoryStore ReorderElements succeeded", "formID", formID, "count", len(reordered))
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// needsID reports whether the store must assign an authoritative id:
// the id is empty or a client-side provisional id.
func needsID(id string) bool {
	return id == "" || util.IsProvisionalID(id)
}

func sortedElements(elements []models.Element) []models.Element {
	out := make([]models.Element, len(elements))
	copy(out, elements)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
