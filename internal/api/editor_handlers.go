// Package api provides form authoring handlers for FormBot endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/formbotkit/formbot/internal/models"
)

// createFormHandler creates a form, optionally with initial elements
// (POST /forms).
func (s *Server) createFormHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("createFormHandler invoked", "method", r.Method, "path", r.URL.Path)
	s.requireAuth(w, r, func() {
		var req models.CreateFormRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("createFormHandler invalid JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := req.Validate(); err != nil {
			slog.Warn("createFormHandler validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}

		form, err := s.st.CreateForm(models.Form{Name: req.Name, Elements: req.Elements})
		if err != nil {
			slog.Error("createFormHandler store create failed", "error", err)
			writeJSONResponse(w, statusForError(err), models.Error("Failed to create form"))
			return
		}
		slog.Info("Form created", "formID", form.ID, "name", form.Name)
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Form created", form))
	}, http.MethodPost)
}

// getFormHandler returns a form with its elements (GET /forms/{id}).
func (s *Server) getFormHandler(w http.ResponseWriter, r *http.Request, formID string) {
	form, err := s.st.GetForm(formID)
	if err != nil {
		slog.Warn("getFormHandler lookup failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error("Form not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(form))
}

// createShareLinkHandler issues the form's share token and URL
// (POST /forms/{id}/share). The token is stable: repeated calls return the
// same link.
func (s *Server) createShareLinkHandler(w http.ResponseWriter, r *http.Request, formID string) {
	token, err := s.st.CreateShareLink(formID)
	if err != nil {
		slog.Error("createShareLinkHandler failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error("Failed to create share link"))
		return
	}
	slog.Info("Share link issued", "formID", formID)
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]string{
		"token": token,
		"url":   s.baseURL + "/shared/" + token,
	}))
}

// listElementsHandler returns the form's elements (GET /forms/{id}/elements).
func (s *Server) listElementsHandler(w http.ResponseWriter, r *http.Request, formID string) {
	elements, err := s.st.ListElements(formID)
	if err != nil {
		slog.Error("listElementsHandler failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error("Failed to fetch elements"))
		return
	}
	slog.Debug("Elements fetched", "formID", formID, "count", len(elements))
	writeJSONResponse(w, http.StatusOK, models.Success(elements))
}

// createElementsHandler batch-creates elements, replacing provisional ids
// with store-issued ones (POST /forms/{id}/elements).
func (s *Server) createElementsHandler(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req models.CreateElementsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("createElementsHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("createElementsHandler validation failed", "error", err, "formID", formID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	created, err := s.st.CreateElements(formID, req.Elements)
	if err != nil {
		slog.Error("createElementsHandler store create failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Elements created", "formID", formID, "count", len(created))
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Elements created", created))
}

// updateElementHandler applies a partial element update
// (PATCH /forms/{id}/elements/{elementID}).
func (s *Server) updateElementHandler(w http.ResponseWriter, r *http.Request, formID, elementID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var patch models.ElementPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		slog.Warn("updateElementHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	updated, err := s.st.UpdateElement(formID, elementID, patch)
	if err != nil {
		slog.Error("updateElementHandler failed", "error", err, "formID", formID, "elementID", elementID)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Debug("Element updated", "formID", formID, "elementID", elementID)
	writeJSONResponse(w, http.StatusOK, models.Success(updated))
}

// deleteElementHandler removes an element
// (DELETE /forms/{id}/elements/{elementID}).
func (s *Server) deleteElementHandler(w http.ResponseWriter, r *http.Request, formID, elementID string) {
	if err := s.st.DeleteElement(formID, elementID); err != nil {
		slog.Error("deleteElementHandler failed", "error", err, "formID", formID, "elementID", elementID)
		writeJSONResponse(w, statusForError(err), models.Error("Failed to delete element"))
		return
	}
	slog.Info("Element deleted", "formID", formID, "elementID", elementID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Element deleted", nil))
}

// reorderElementsHandler atomically replaces the form's element order
// (PUT /forms/{id}/order). The ids must be a permutation of the form's
// elements; partial reorders are rejected without changes.
func (s *Server) reorderElementsHandler(w http.ResponseWriter, r *http.Request, formID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req models.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("reorderElementsHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("reorderElementsHandler validation failed", "error", err, "formID", formID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.st.ReorderElements(formID, req.OrderedIDs); err != nil {
		slog.Error("reorderElementsHandler failed", "error", err, "formID", formID)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Elements reordered", "formID", formID, "count", len(req.OrderedIDs))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Order updated", nil))
}
