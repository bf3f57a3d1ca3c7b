package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/formbotkit/formbot/internal/models"
)

// scanElement scans an Element from sql.Rows.
func scanElement(rows *sql.Rows) (models.Element, error) {
	var el models.Element
	var label, value sql.NullString
	err := rows.Scan(&el.ID, &el.FormID, &el.Kind, &label, &el.Order, &el.Required, &value)
	if err != nil {
		return el, fmt.Errorf("scan element failed: %w", err)
	}
	el.Label = label.String
	el.Value = value.String
	return el, nil
}

// scanResponse scans a FormResponse from sql.Rows, decoding the answers JSON.
func scanResponse(rows *sql.Rows) (models.FormResponse, error) {
	var resp models.FormResponse
	var answersJSON string
	err := rows.Scan(&resp.ID, &resp.FormID, &answersJSON, &resp.Status, &resp.StartedAt, &resp.UpdatedAt)
	if err != nil {
		return resp, fmt.Errorf("scan response failed: %w", err)
	}
	if err := json.Unmarshal([]byte(answersJSON), &resp.Answers); err != nil {
		return resp, fmt.Errorf("decode answers for response %s: %w", resp.ID, err)
	}
	if resp.Answers == nil {
		resp.Answers = make(map[string]string)
	}
	return resp, nil
}

// marshalAnswers encodes the answers map for storage.
func marshalAnswers(answers map[string]string) (string, error) {
	if answers == nil {
		answers = map[string]string{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}
	return string(data), nil
}

// collectElements drains rows into a sorted-by-query element slice.
func collectElements(rows *sql.Rows) ([]models.Element, error) {
	defer rows.Close()
	var elements []models.Element
	for rows.Next() {
		el, err := scanElement(rows)
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate element rows: %w", err)
	}
	return elements, nil
}
