// Package models defines the core data structures for FormBot.
//
// It includes types for forms, flow elements, response sessions, and
// analytics summaries, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxAnswerLength defines the maximum allowed length for a submitted answer
	MaxAnswerLength = 4096
	// MaxLabelLength defines the maximum allowed length for element labels
	MaxLabelLength = 100
	// MinRating defines the lowest accepted rating answer
	MinRating = 1
	// MaxRating defines the highest accepted rating answer
	MaxRating = 5
	// ButtonCompletionValue is the fixed literal recorded when a button-input
	// element triggers completion.
	ButtonCompletionValue = "completed"
)

// Error variables for better error handling and testability
var (
	ErrEmptyAnswer       = errors.New("answer cannot be empty")
	ErrAnswerTooLong     = errors.New("answer exceeds maximum length")
	ErrInvalidNumber     = errors.New("answer must be a number")
	ErrInvalidEmail      = errors.New("answer must be a valid email address")
	ErrInvalidPhone      = errors.New("answer must be a valid phone number")
	ErrInvalidDate       = errors.New("answer must be a date in YYYY-MM-DD format")
	ErrInvalidRating     = errors.New("rating must be an integer between 1 and 5")
	ErrNotInteractive    = errors.New("element does not accept answers")
	ErrInvalidCompletion = errors.New("button answers must be the completion literal")
	ErrDuplicateOrder    = errors.New("element order values must be unique within a form")
	ErrNegativeOrder     = errors.New("element order must be non-negative")
	ErrMissingElementID  = errors.New("element id is required")
	// ErrInvalidElementKind rejects unknown kinds at creation time. Unknown
	// kinds already stored are tolerated and rendered as unsupported.
	ErrInvalidElementKind = errors.New("unknown element kind")
)

// Element is one node in a form's ordered flow. Presentational elements
// (bubbles) carry authored content in Value and never collect an answer;
// interactive elements collect exactly one answer from the respondent.
type Element struct {
	ID       string      `json:"id"`
	FormID   string      `json:"form_id,omitempty"`
	Kind     ElementKind `json:"kind"`
	Label    string      `json:"label,omitempty"`
	Order    int         `json:"order"`
	Required bool        `json:"required,omitempty"`
	Value    string      `json:"value,omitempty"` // authored content for presentational kinds
}

// ElementPatch describes a partial update to an element. Nil fields are
// left unchanged.
type ElementPatch struct {
	Value    *string `json:"value,omitempty"`
	Required *bool   `json:"required,omitempty"`
	Order    *int    `json:"order,omitempty"`
}

// Form represents a form with its ordered element list.
type Form struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	ShareToken string    `json:"share_token,omitempty"`
	Elements   []Element `json:"elements"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// InteractiveCount returns the number of elements that collect an answer.
// Unsupported kinds are excluded, matching their exclusion from completion
// counting.
func (f *Form) InteractiveCount() int {
	count := 0
	for _, el := range f.Elements {
		if IsInteractive(el.Kind) {
			count++
		}
	}
	return count
}

// ValidateElements checks a form's element list for structural validity:
// every element has an id, orders are non-negative, and no two elements
// share an order value.
func ValidateElements(elements []Element) error {
	seen := make(map[int]bool, len(elements))
	for _, el := range elements {
		if el.ID == "" {
			return ErrMissingElementID
		}
		if el.Order < 0 {
			return ErrNegativeOrder
		}
		if seen[el.Order] {
			return ErrDuplicateOrder
		}
		seen[el.Order] = true
	}
	return nil
}

// ResponseStatus represents the progress of one respondent's session.
type ResponseStatus string

const (
	// ResponseStatusPartial indicates the respondent started but has not finished.
	ResponseStatusPartial ResponseStatus = "partial"
	// ResponseStatusCompleted indicates the respondent finished the form.
	ResponseStatusCompleted ResponseStatus = "completed"
)

// IsValidResponseStatus checks if the given response status is supported.
func IsValidResponseStatus(s ResponseStatus) bool {
	switch s {
	case ResponseStatusPartial, ResponseStatusCompleted:
		return true
	default:
		return false
	}
}

// FormResponse represents one respondent's recorded answers for a form.
type FormResponse struct {
	ID        string            `json:"id"`
	FormID    string            `json:"form_id"`
	Answers   map[string]string `json:"answers"` // element id -> committed value
	Status    ResponseStatus    `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// AnalyticsSummary carries the per-form aggregate counters computed by the
// store. The flow engine only triggers the counting events.
type AnalyticsSummary struct {
	FormID          string `json:"form_id"`
	ViewCount       int    `json:"view_count"`
	StartCount      int    `json:"start_count"`
	CompletionCount int    `json:"completion_count"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Recorded creates a recorded API response with an optional message.
func Recorded(message string) APIResponse {
	return APIResponse{Status: string(APIStatusRecorded), Message: message}
}
