// Package api provides HTTP handlers for FormBot respondent endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/formbotkit/formbot/internal/models"
)

// sharedFormHandler resolves a share token to its form (GET /shared/{token}).
func (s *Server) sharedFormHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("sharedFormHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("sharedFormHandler method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	token := trimPathSegment(r.URL.Path, "/shared/")
	if token == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Share token is required"))
		return
	}

	form, err := s.st.GetFormByShareToken(token)
	if err != nil {
		slog.Warn("sharedFormHandler token resolution failed", "error", err, "token", token)
		writeJSONResponse(w, statusForError(err), models.Error("Shared form not found"))
		return
	}
	slog.Debug("sharedFormHandler resolved form", "formID", form.ID, "elements", len(form.Elements))
	writeJSONResponse(w, http.StatusOK, models.Success(form))
}

// recordViewHandler records one view event (POST /forms/{id}/views).
func (s *Server) recordViewHandler(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if err := s.st.RecordView(formID); err != nil {
		slog.Error("recordViewHandler failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error("Failed to record view"))
		return
	}
	slog.Debug("View recorded", "formID", formID)
	writeJSONResponse(w, http.StatusCreated, models.Recorded("View recorded"))
}

// startResponseHandler opens a response session and returns its id
// (POST /forms/{id}/responses).
func (s *Server) startResponseHandler(w http.ResponseWriter, r *http.Request, formID string) {
	sessionID, err := s.st.StartResponse(formID)
	if err != nil {
		slog.Error("startResponseHandler failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error("Failed to start response"))
		return
	}
	slog.Info("Response session started", "formID", formID, "sessionID", sessionID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Response started", map[string]string{"session_id": sessionID}))
}

// submitAnswerHandler records one committed answer on a session
// (POST /responses/{sessionID}/answers).
func (s *Server) submitAnswerHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("submitAnswerHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("submitAnswerHandler validation failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.st.SubmitAnswer(sessionID, req.ElementID, req.Value, req.Completed); err != nil {
		slog.Error("submitAnswerHandler failed", "error", err, "sessionID", sessionID, "elementID", req.ElementID)
		writeJSONResponse(w, statusForError(err), models.Error("Failed to record answer"))
		return
	}
	slog.Info("Answer recorded", "sessionID", sessionID, "elementID", req.ElementID, "completed", req.Completed)
	writeJSONResponse(w, http.StatusCreated, models.Recorded("Answer recorded"))
}

// analyticsHandler returns the form's aggregate counters
// (GET /forms/{id}/analytics).
func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request, formID string) {
	summary, err := s.st.GetAnalyticsSummary(formID)
	if err != nil {
		slog.Error("analyticsHandler failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error("Failed to fetch analytics"))
		return
	}
	slog.Debug("Analytics fetched", "formID", formID, "views", summary.ViewCount)
	writeJSONResponse(w, http.StatusOK, models.Success(summary))
}

// listResponsesHandler returns a page of recorded responses
// (GET /forms/{id}/responses?page=&page_size=&status=).
func (s *Server) listResponsesHandler(w http.ResponseWriter, r *http.Request, formID string) {
	q := r.URL.Query()
	page := parsePositiveInt(q.Get("page"), 1)
	pageSize := parsePositiveInt(q.Get("page_size"), 50)
	status := models.ResponseStatus(q.Get("status"))
	if status != "" && !models.IsValidResponseStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown response status filter"))
		return
	}

	responses, err := s.st.ListResponses(formID, page, pageSize, status)
	if err != nil {
		slog.Error("listResponsesHandler failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error("Failed to fetch responses"))
		return
	}
	slog.Debug("Responses fetched", "formID", formID, "count", len(responses), "page", page)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"responses": responses,
		"page":      page,
		"page_size": pageSize,
	}))
}

// healthHandler provides a health check endpoint for monitoring and load
// balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// parsePositiveInt parses a query parameter, falling back on absent or
// non-positive values.
func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
