// Package store provides storage backends for FormBot.
//
// It includes an in-memory store for tests and development, plus persistent
// SQLite and PostgreSQL backends selected by DSN.
package store

import (
	"errors"
	"strings"

	"github.com/formbotkit/formbot/internal/models"
)

// Error variables shared by all store backends.
var (
	// ErrFormNotFound indicates the requested form does not exist.
	ErrFormNotFound = errors.New("form not found")
	// ErrShareTokenNotFound indicates the share token resolves to no form.
	ErrShareTokenNotFound = errors.New("share token not found")
	// ErrElementNotFound indicates the requested element does not exist.
	ErrElementNotFound = errors.New("element not found")
	// ErrSessionNotFound indicates the response session does not exist.
	ErrSessionNotFound = errors.New("response session not found")
	// ErrReorderMismatch indicates a reorder request did not cover exactly
	// the form's element ids. Partial reorders are not applied.
	ErrReorderMismatch = errors.New("reorder ids must be a permutation of the form's element ids")
)

// Store defines the remote-store operations consumed by the flow runtime,
// the editor, and the HTTP API.
type Store interface {
	// Form lifecycle.
	CreateForm(form models.Form) (models.Form, error)
	GetForm(formID string) (*models.Form, error)
	CreateShareLink(formID string) (string, error)
	GetFormByShareToken(token string) (*models.Form, error)

	// Respondent events. Counting exactly once per event is the store's
	// responsibility; callers guarantee at most one call per lifecycle flag.
	RecordView(formID string) error
	StartResponse(formID string) (string, error)
	SubmitAnswer(sessionID, elementID, value string, completed bool) error
	GetAnalyticsSummary(formID string) (models.AnalyticsSummary, error)
	ListResponses(formID string, page, pageSize int, status models.ResponseStatus) ([]models.FormResponse, error)

	// Editor operations.
	ListElements(formID string) ([]models.Element, error)
	CreateElements(formID string, elements []models.Element) ([]models.Element, error)
	UpdateElement(formID, elementID string, patch models.ElementPatch) (*models.Element, error)
	DeleteElement(formID, elementID string) error
	ReorderElements(formID string, orderedIDs []string) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType determines the database driver implied by a DSN.
// PostgreSQL DSNs use URL or key=value forms; anything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
