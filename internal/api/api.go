// Package api provides HTTP handlers and the main API server logic for
// FormBot.
//
// It exposes RESTful endpoints for form authoring, share-link resolution,
// respondent events, and response analytics. The API integrates with the
// store module and serves as the remote side of the flow runtime and the
// editor.
package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/formbotkit/formbot/internal/models"
	"github.com/formbotkit/formbot/internal/store"
)

// DefaultAddr is the listen address used when no option overrides it.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address.
	Addr string
	// BaseURL is the externally visible URL prefix used to build share
	// links. Defaults to http://localhost<addr>.
	BaseURL string
	// APIKey guards the authoring endpoints when non-empty. Respondent
	// endpoints are always public.
	APIKey string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithBaseURL sets the URL prefix for generated share links.
func WithBaseURL(u string) Option {
	return func(o *Opts) {
		o.BaseURL = strings.TrimSuffix(u, "/")
	}
}

// WithAPIKey requires a bearer token on authoring endpoints.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// Server hosts the FormBot HTTP API.
type Server struct {
	st      store.Store
	addr    string
	baseURL string
	apiKey  string
}

// NewServer creates an API server backed by the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.Addr
	}
	return &Server{st: st, addr: cfg.Addr, baseURL: cfg.BaseURL, apiKey: cfg.APIKey}
}

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/forms", s.createFormHandler)
	mux.HandleFunc("/forms/", s.formsRouter)
	mux.HandleFunc("/shared/", s.sharedFormHandler)
	mux.HandleFunc("/responses/", s.responsesRouter)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("FormBot API running", "addr", s.addr)
	return srv.ListenAndServe()
}

// formsRouter dispatches /forms/{id}[/...] requests by path segment.
func (s *Server) formsRouter(w http.ResponseWriter, r *http.Request) {
	slog.Debug("formsRouter invoked", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/forms/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Form id is required"))
		return
	}
	formID := segments[0]

	if len(segments) == 1 {
		// /forms/{id}
		switch r.Method {
		case http.MethodGet:
			s.getFormHandler(w, r, formID)
		default:
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 {
		switch segments[1] {
		case "share":
			// /forms/{id}/share
			s.requireAuth(w, r, func() { s.createShareLinkHandler(w, r, formID) }, http.MethodPost)
		case "views":
			// /forms/{id}/views
			s.recordViewHandler(w, r, formID)
		case "responses":
			// /forms/{id}/responses
			switch r.Method {
			case http.MethodPost:
				s.startResponseHandler(w, r, formID)
			case http.MethodGet:
				s.requireAuth(w, r, func() { s.listResponsesHandler(w, r, formID) }, http.MethodGet)
			default:
				w.Header().Set("Allow", "GET, POST")
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			}
		case "analytics":
			// /forms/{id}/analytics
			s.requireAuth(w, r, func() { s.analyticsHandler(w, r, formID) }, http.MethodGet)
		case "elements":
			// /forms/{id}/elements
			switch r.Method {
			case http.MethodGet:
				s.listElementsHandler(w, r, formID)
			case http.MethodPost:
				s.requireAuth(w, r, func() { s.createElementsHandler(w, r, formID) }, http.MethodPost)
			default:
				w.Header().Set("Allow", "GET, POST")
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			}
		case "order":
			// /forms/{id}/order
			s.requireAuth(w, r, func() { s.reorderElementsHandler(w, r, formID) }, http.MethodPut)
		default:
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown form endpoint"))
		}
		return
	}

	if len(segments) == 3 && segments[1] == "elements" {
		// /forms/{id}/elements/{elementID}
		elementID := segments[2]
		switch r.Method {
		case http.MethodPatch:
			s.requireAuth(w, r, func() { s.updateElementHandler(w, r, formID, elementID) }, http.MethodPatch)
		case http.MethodDelete:
			s.requireAuth(w, r, func() { s.deleteElementHandler(w, r, formID, elementID) }, http.MethodDelete)
		default:
			w.Header().Set("Allow", "PATCH, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown form endpoint"))
}

// responsesRouter dispatches /responses/{sessionID}/answers requests.
func (s *Server) responsesRouter(w http.ResponseWriter, r *http.Request) {
	slog.Debug("responsesRouter invoked", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/responses/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 2 && segments[0] != "" && segments[1] == "answers" {
		s.submitAnswerHandler(w, r, segments[0])
		return
	}
	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown response endpoint"))
}

// requireAuth enforces the method and, when an API key is configured, a
// matching bearer token before invoking the handler.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request, handler func(), method string) {
	if r.Method != method {
		w.Header().Set("Allow", method)
		slog.Warn("Method not allowed", "method", r.Method, "path", r.URL.Path)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if s.apiKey != "" {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			slog.Warn("Unauthorized authoring request", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or missing API key"))
			return
		}
	}
	handler()
}
