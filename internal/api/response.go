// Package api provides HTTP response utilities for FormBot.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/formbotkit/formbot/internal/models"
	"github.com/formbotkit/formbot/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		// Use pre-marshaled fallback response - if this fails, we have bigger problems
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	// Write headers and response only after successful JSON marshaling
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusForError maps store and validation errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrFormNotFound),
		errors.Is(err, store.ErrShareTokenNotFound),
		errors.Is(err, store.ErrElementNotFound),
		errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrReorderMismatch),
		errors.Is(err, models.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, models.ErrMissingElementID),
		errors.Is(err, models.ErrNegativeOrder),
		errors.Is(err, models.ErrInvalidElementKind),
		errors.Is(err, models.ErrEmptyAnswer),
		errors.Is(err, models.ErrAnswerTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// trimPathSegment extracts the single path segment after a prefix, rejecting
// nested paths.
func trimPathSegment(path, prefix string) string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
