// Package store provides storage backends for FormBot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/formbotkit/formbot/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// CreateForm stores a new form and its elements in one transaction.
func (s *SQLiteStore) CreateForm(form models.Form) (models.Form, error) {
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
		slog.Error("SQLiteStore CreateForm invalid elements", "error", err, "formID", form.ID)
		return models.Form{}, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return models.Form{}, fmt.Errorf("begin create form: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO forms (id, name, created_at) VALUES (?, ?, ?)`, form.ID, form.Name, form.CreatedAt); err != nil {
		slog.Error("SQLiteStore CreateForm insert failed", "error", err, "formID", form.ID)
		return models.Form{}, fmt.Errorf("insert form: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO form_analytics (form_id) VALUES (?)`, form.ID); err != nil {
		return models.Form{}, fmt.Errorf("insert analytics row: %w", err)
	}
	for _, el := range elements {
		if _, err := tx.Exec(
			`INSERT INTO elements (id, form_id, kind, label, ord, required, value) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			el.ID, el.FormID, el.Kind, el.Label, el.Order, el.Required, el.Value,
		); err != nil {
			return models.Form{}, fmt.Errorf("insert element %s: %w", el.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Form{}, fmt.Errorf("commit create form: %w", err)
	}

	slog.Debug("SQLiteStore CreateForm succeeded", "formID", form.ID, "elements", len(elements))
	form.Elements = elements
	return form, nil
}

// GetForm returns a form with its elements sorted by ascending order.
func (s *SQLiteStore) GetForm(formID string) (*models.Form, error) {
	var form models.Form
	var shareToken sql.NullString
	err := s.db.QueryRow(`SELECT id, name, share_token, created_at FROM forms WHERE id = ?`, formID).
		Scan(&form.ID, &form.Name, &shareToken, &form.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrFormNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetForm query failed", "error", err, "formID", formID)
		return nil, fmt.Errorf("query form %s: %w", formID, err)
	}
	form.ShareToken = shareToken.String

	elements, err := s.ListElements(formID)
	if err != nil {
		return nil, err
	}
	form.Elements = elements
	return &form, nil
}

// CreateShareLink returns the form's share token, creating one on first use.
func (s *SQLiteStore) CreateShareLink(formID string) (string, error) {
	var token sql.NullString
	err := s.db.QueryRow(`SELECT share_token FROM forms WHERE id = ?`, formID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", ErrFormNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query share token: %w", err)
	}
	if token.Valid && token.String != "" {
		return token.String, nil
	}

	newToken := uuid.NewString()
	if _, err := s.db.Exec(`UPDATE forms SET share_token = ? WHERE id = ?`, newToken, formID); err != nil {
		slog.Error("SQLiteStore CreateShareLink update failed", "error", err, "formID", formID)
		return "", fmt.Errorf("set share token: %w", err)
	}
	slog.Info("SQLiteStore CreateShareLink created token", "formID", formID)
	return newToken, nil
}

// GetFormByShareToken resolves a share token to its form.
func (s *SQLiteStore) GetFormByShareToken(token string) (*models.Form, error) {
	var formID string
	err := s.db.QueryRow(`SELECT id FROM forms WHERE share_token = ?`, token).Scan(&formID)
	if err == sql.ErrNoRows {
		return nil, ErrShareTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve share token: %w", err)
	}
	return s.GetForm(formID)
}

// RecordView increments the form's view counter.
func (s *SQLiteStore) RecordView(formID string) error {
	res, err := s.db.Exec(`UPDATE form_analytics SET view_count = view_count + 1 WHERE form_id = ?`, formID)
	if err != nil {
		slog.Error("SQLiteStore RecordView failed", "error", err, "formID", formID)
		return fmt.Errorf("record view for %s: %w", formID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFormNotFound
	}
	slog.Debug("SQLiteStore RecordView succeeded", "formID", formID)
	return nil
}

// StartResponse creates a response session and increments the start counter.
func (s *SQLiteStore) StartResponse(formID string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin start response: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE form_analytics SET start_count = start_count + 1 WHERE form_id = ?`, formID)
	if err != nil {
		return "", fmt.Errorf("increment start count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrFormNotFound
	}

	sessionID := uuid.NewString()
	now := time.Now()
	if _, err := tx.Exec(
		`INSERT INTO responses (id, form_id, answers, status, started_at, updated_at) VALUES (?, ?, '{}', ?, ?, ?)`,
		sessionID, formID, models.ResponseStatusPartial, now, now,
	); err != nil {
		slog.Error("SQLiteStore StartResponse insert failed", "error", err, "formID", formID)
		return "", fmt.Errorf("insert response session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit start response: %w", err)
	}

	slog.Debug("SQLiteStore StartResponse succeeded", "formID", formID, "sessionID", sessionID)
	return sessionID, nil
}

// SubmitAnswer records one committed answer on a session. The completion
// counter increments only on the first transition to completed.
func (s *SQLiteStore) SubmitAnswer(sessionID, elementID, value string, completed bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin submit answer: %w", err)
	}
	defer tx.Rollback()

	var formID, answersJSON string
	var status models.ResponseStatus
	err = tx.QueryRow(`SELECT form_id, answers, status FROM responses WHERE id = ?`, sessionID).
		Scan(&formID, &answersJSON, &status)
	if err == sql.ErrNoRows {
		slog.Error("SQLiteStore SubmitAnswer session not found", "sessionID", sessionID)
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("query session %s: %w", sessionID, err)
	}

	answers := make(map[string]string)
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		return fmt.Errorf("decode answers for session %s: %w", sessionID, err)
	}
	answers[elementID] = value
	encoded, err := marshalAnswers(answers)
	if err != nil {
		return err
	}

	newStatus := status
	if completed && status != models.ResponseStatusCompleted {
		newStatus = models.ResponseStatusCompleted
		if _, err := tx.Exec(`UPDATE form_analytics SET completion_count = completion_count + 1 WHERE form_id = ?`, formID); err != nil {
			return fmt.Errorf("increment completion count: %w", err)
		}
	}

	if _, err := tx.Exec(
		`UPDATE responses SET answers = ?, status = ?, updated_at = ? WHERE id = ?`,
		encoded, newStatus, time.Now(), sessionID,
	); err != nil {
		slog.Error("SQLiteStore SubmitAnswer update failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("update session %s: %w", sessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submit answer: %w", err)
	}

	slog.Debug("SQLiteStore SubmitAnswer succeeded", "sessionID", sessionID, "elementID", elementID, "completed", completed)
	return nil
}

// GetAnalyticsSummary returns the form's aggregate counters.
func (s *SQLiteStore) GetAnalyticsSummary(formID string) (models.AnalyticsSummary, error) {
	var summary models.AnalyticsSummary
	summary.FormID = formID
	err := s.db.QueryRow(
		`SELECT view_count, start_count, completion_count FROM form_analytics WHERE form_id = ?`, formID,
	).Scan(&summary.ViewCount, &summary.StartCount, &summary.CompletionCount)
	if err == sql.ErrNoRows {
		return models.AnalyticsSummary{}, ErrFormNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetAnalyticsSummary failed", "error", err, "formID", formID)
		return models.AnalyticsSummary{}, fmt.Errorf("query analytics for %s: %w", formID, err)
	}
	return summary, nil
}

// ListResponses returns a page of the form's response sessions, newest first,
// optionally filtered by status.
func (s *SQLiteStore) ListResponses(formID string, page, pageSize int, status models.ResponseStatus) ([]models.FormResponse, error) {
	if _, err := s.GetAnalyticsSummary(formID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := `SELECT id, form_id, answers, status, started_at, updated_at FROM responses WHERE form_id = ?`
	args := []interface{}{formID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListResponses query failed", "error", err, "formID", formID)
		return nil, fmt.Errorf("query responses for %s: %w", formID, err)
	}
	defer rows.Close()

	responses := []models.FormResponse{}
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate response rows: %w", err)
	}
	return responses, nil
}

// ListElements returns the form's elements sorted by ascending order.
func (s *SQLiteStore) ListElements(formID string) ([]models.Element, error) {
	rows, err := s.db.Query(
		`SELECT id, form_id, kind, label, ord, required, value FROM elements WHERE form_id = ? ORDER BY ord ASC`, formID,
	)
	if err != nil {
		slog.Error("SQLiteStore ListElements query failed", "error", err, "formID", formID)
		return nil, fmt.Errorf("query elements for %s: %w", formID, err)
	}
	return collectElements(rows)
}

// CreateElements appends new elements to the form, assigning authoritative
// ids. The combined element list must keep unique order values.
func (s *SQLiteStore) CreateElements(formID string, elements []models.Element) ([]models.Element, error) {
	existing, err := s.ListElements(formID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetAnalyticsSummary(formID); err != nil {
		return nil, err
	}

	created := make([]models.Element, len(elements))
	copy(created, elements)
	for i := range created {
		if needsID(created[i].ID) {
			created[i].ID = uuid.NewString()
		}
		created[i].FormID = formID
	}
	if err := models.ValidateElements(append(existing, created...)); err != nil {
		slog.Error("SQLiteStore CreateElements invalid elements", "error", err, "formID", formID)
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin create elements: %w", err)
	}
	defer tx.Rollback()
	for _, el := range created {
		if _, err := tx.Exec(
			`INSERT INTO elements (id, form_id, kind, label, ord, required, value) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			el.ID, el.FormID, el.Kind, el.Label, el.Order, el.Required, el.Value,
		); err != nil {
			slog.Error("SQLiteStore CreateElements insert failed", "error", err, "formID", formID, "elementID", el.ID)
			return nil, fmt.Errorf("insert element %s: %w", el.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create elements: %w", err)
	}

	slog.Debug("SQLiteStore CreateElements succeeded", "formID", formID, "count", len(created))
	return created, nil
}

// UpdateElement applies a partial update and returns the updated element.
func (s *SQLiteStore) UpdateElement(formID, elementID string, patch models.ElementPatch) (*models.Element, error) {
	elements, err := s.ListElements(formID)
	if err != nil {
		return nil, err
	}

	var current *models.Element
	for i := range elements {
		if elements[i].ID == elementID {
			current = &elements[i]
			continue
		}
		if patch.Order != nil && elements[i].Order == *patch.Order {
			slog.Error("SQLiteStore UpdateElement order collision", "formID", formID, "elementID", elementID, "order", *patch.Order)
			return nil, models.ErrDuplicateOrder
		}
	}
	if current == nil {
		return nil, ErrElementNotFound
	}

	if patch.Value != nil {
		current.Value = *patch.Value
	}
	if patch.Required != nil {
		current.Required = *patch.Required
	}
	if patch.Order != nil {
		current.Order = *patch.Order
	}

	if _, err := s.db.Exec(
		`UPDATE elements SET value = ?, required = ?, ord = ? WHERE id = ? AND form_id = ?`,
		current.Value, current.Required, current.Order, elementID, formID,
	); err != nil {
		slog.Error("SQLiteStore UpdateElement failed", "error", err, "formID", formID, "elementID", elementID)
		return nil, fmt.Errorf("update element %s: %w", elementID, err)
	}
	slog.Debug("SQLiteStore UpdateElement succeeded", "formID", formID, "elementID", elementID)
	return current, nil
}

// DeleteElement removes an element from the form.
func (s *SQLiteStore) DeleteElement(formID, elementID string) error {
	res, err := s.db.Exec(`DELETE FROM elements WHERE id = ? AND form_id = ?`, elementID, formID)
	if err != nil {
		slog.Error("SQLiteStore DeleteElement failed", "error", err, "formID", formID, "elementID", elementID)
		return fmt.Errorf("delete element %s: %w", elementID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrElementNotFound
	}
	slog.Debug("SQLiteStore DeleteElement succeeded", "formID", formID, "elementID", elementID)
	return nil
}

// ReorderElements applies a full new ordering in one transaction. Orders are
// first moved to a negative range to avoid tripping the unique constraint
// mid-update, then flipped to the final positions.
func (s *SQLiteStore) ReorderElements(formID string, orderedIDs []string) error {
	existing, err := s.ListElements(formID)
	if err != nil {
		return err
	}
	if err := checkPermutation(existing, orderedIDs); err != nil {
		slog.Error("SQLiteStore ReorderElements invalid id set", "error", err, "formID", formID)
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	for position, id := range orderedIDs {
		if _, err := tx.Exec(`UPDATE elements SET ord = ? WHERE id = ? AND form_id = ?`, -(position + 1), id, formID); err != nil {
			return fmt.Errorf("stage order for element %s: %w", id, err)
		}
	}
	if _, err := tx.Exec(`UPDATE elements SET ord = -ord - 1 WHERE form_id = ? AND ord < 0`, formID); err != nil {
		return fmt.Errorf("finalize reorder: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}

	slog.Debug("SQLiteStore ReorderElements succeeded", "formID", formID, "count", len(orderedIDs))
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// checkPermutation verifies orderedIDs covers exactly the existing element ids.
func checkPermutation(existing []models.Element, orderedIDs []string) error {
	if len(orderedIDs) != len(existing) {
		return ErrReorderMismatch
	}
	known := make(map[string]bool, len(existing))
	for _, el := range existing {
		known[el.ID] = true
	}
	for _, id := range orderedIDs {
		if !known[id] {
			return ErrReorderMismatch
		}
		delete(known, id)
	}
	return nil
}
