// Package models defines the core data structures for FormBot.
//
// This file holds API request payloads and their validation.
package models

import "errors"

// Request validation errors.
var (
	// ErrNoElements indicates a batch create with an empty element list.
	ErrNoElements = errors.New("at least one element is required")
	// ErrEmptyReorder indicates a reorder request with no element ids.
	ErrEmptyReorder = errors.New("ordered element ids are required")
	// ErrMissingFormName indicates a form create without a name.
	ErrMissingFormName = errors.New("form name is required")
)

// CreateFormRequest is the payload for creating a form, optionally with its
// initial elements.
type CreateFormRequest struct {
	Name     string    `json:"name"`
	Elements []Element `json:"elements,omitempty"`
}

// Validate checks the form create payload.
func (r CreateFormRequest) Validate() error {
	if r.Name == "" {
		return ErrMissingFormName
	}
	if len(r.Elements) > 0 {
		return ValidateElements(r.Elements)
	}
	return nil
}

// CreateElementsRequest is the payload for batch-creating elements.
// Provisional ids are replaced with store-issued ones.
type CreateElementsRequest struct {
	Elements []Element `json:"elements"`
}

// Validate checks the batch create payload. Order uniqueness against the
// form's existing elements is the store's responsibility.
func (r CreateElementsRequest) Validate() error {
	if len(r.Elements) == 0 {
		return ErrNoElements
	}
	for _, el := range r.Elements {
		if !IsValidElementKind(el.Kind) {
			return ErrInvalidElementKind
		}
		if el.Order < 0 {
			return ErrNegativeOrder
		}
	}
	return nil
}

// ReorderRequest is the payload for replacing a form's element order. The
// ids must cover exactly the form's elements.
type ReorderRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

// Validate checks the reorder payload.
func (r ReorderRequest) Validate() error {
	if len(r.OrderedIDs) == 0 {
		return ErrEmptyReorder
	}
	return nil
}

// SubmitAnswerRequest is the payload for recording one committed answer on a
// response session.
type SubmitAnswerRequest struct {
	ElementID string `json:"element_id"`
	Value     string `json:"value"`
	Completed bool   `json:"completed"`
}

// Validate checks the answer payload. Answer-shape validation happens in the
// runtime before submission; the server re-checks only structural fields.
func (r SubmitAnswerRequest) Validate() error {
	if r.ElementID == "" {
		return ErrMissingElementID
	}
	if r.Value == "" {
		return ErrEmptyAnswer
	}
	if len(r.Value) > MaxAnswerLength {
		return ErrAnswerTooLong
	}
	return nil
}
