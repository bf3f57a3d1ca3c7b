// Package client provides an HTTP implementation of the store interface
// against a running FormBot API server. The flow runtime and the editor work
// against it exactly as they do against a local store backend.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/formbotkit/formbot/internal/models"
	"github.com/formbotkit/formbot/internal/store"
)

// ErrUnauthorized indicates an authoring call without a valid API key.
var ErrUnauthorized = errors.New("api key rejected")

// DefaultTimeout bounds every request issued by the client.
const DefaultTimeout = 30 * time.Second

// AuthSession carries the credentials for authoring calls. Respondent calls
// never send it. Holding the token in an explicit session object keeps it
// out of process-wide state and lets callers scope it per authoring context.
type AuthSession struct {
	Token string
}

// Opts holds configuration options for the client.
type Opts struct {
	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
	// Auth is attached to authoring requests when set.
	Auth *AuthSession
}

// Option defines a configuration option for the client.
type Option func(*Opts)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// WithAuthSession attaches an authoring session to the client.
func WithAuthSession(a *AuthSession) Option {
	return func(o *Opts) {
		o.Auth = a
	}
}

// Client talks to the FormBot HTTP API. It implements store.Store.
type Client struct {
	baseURL string
	httpc   *http.Client
	auth    *AuthSession
}

// Interface guard.
var _ store.Store = (*Client)(nil)

// NewClient creates a client for the API server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: baseURL, httpc: cfg.HTTPClient, auth: cfg.Auth}
}

// envelope mirrors models.APIResponse with a raw result for deferred
// decoding.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// do issues one request and decodes the response envelope. notFoundErr is
// returned for 404s so callers surface the same sentinel errors as local
// store backends.
func (c *Client) do(method, path string, body interface{}, authed bool, notFoundErr error) (*envelope, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.auth != nil {
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	}

	slog.Debug("Client request", "method", method, "path", path)
	resp, err := c.httpc.Do(req)
	if err != nil {
		slog.Error("Client request failed", "error", err, "method", method, "path", path)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	switch {
	case resp.StatusCode < 300:
		return &env, nil
	case resp.StatusCode == http.StatusNotFound && notFoundErr != nil:
		return nil, notFoundErr
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%s %s: %w", method, path, store.ErrReorderMismatch)
	default:
		slog.Warn("Client request rejected", "method", method, "path", path, "status", resp.StatusCode, "message", env.Message)
		return nil, fmt.Errorf("%s %s: server returned %d: %s", method, path, resp.StatusCode, env.Message)
	}
}

func (c *Client) decodeResult(env *envelope, out interface{}) error {
	if len(env.Result) == 0 {
		return errors.New("response carried no result")
	}
	return json.Unmarshal(env.Result, out)
}

// CreateForm creates a form with its initial elements.
func (c *Client) CreateForm(form models.Form) (models.Form, error) {
	req := models.CreateFormRequest{Name: form.Name, Elements: form.Elements}
	env, err := c.do(http.MethodPost, "/forms", req, true, nil)
	if err != nil {
		return models.Form{}, err
	}
	var created models.Form
	if err := c.decodeResult(env, &created); err != nil {
		return models.Form{}, fmt.Errorf("create form: %w", err)
	}
	return created, nil
}

// GetForm fetches a form with its elements.
func (c *Client) GetForm(formID string) (*models.Form, error) {
	env, err := c.do(http.MethodGet, "/forms/"+url.PathEscape(formID), nil, false, store.ErrFormNotFound)
	if err != nil {
		return nil, err
	}
	var form models.Form
	if err := c.decodeResult(env, &form); err != nil {
		return nil, fmt.Errorf("get form: %w", err)
	}
	return &form, nil
}

// CreateShareLink issues the form's stable share token.
func (c *Client) CreateShareLink(formID string) (string, error) {
	env, err := c.do(http.MethodPost, "/forms/"+url.PathEscape(formID)+"/share", nil, true, store.ErrFormNotFound)
	if err != nil {
		return "", err
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := c.decodeResult(env, &result); err != nil {
		return "", fmt.Errorf("create share link: %w", err)
	}
	return result.Token, nil
}

// GetFormByShareToken resolves a share token to its form.
func (c *Client) GetFormByShareToken(token string) (*models.Form, error) {
	env, err := c.do(http.MethodGet, "/shared/"+url.PathEscape(token), nil, false, store.ErrShareTokenNotFound)
	if err != nil {
		return nil, err
	}
	var form models.Form
	if err := c.decodeResult(env, &form); err != nil {
		return nil, fmt.Errorf("resolve share token: %w", err)
	}
	return &form, nil
}

// RecordView records one view event for the form.
func (c *Client) RecordView(formID string) error {
	_, err := c.do(http.MethodPost, "/forms/"+url.PathEscape(formID)+"/views", nil, false, store.ErrFormNotFound)
	return err
}

// StartResponse opens a response session and returns its id.
func (c *Client) StartResponse(formID string) (string, error) {
	env, err := c.do(http.MethodPost, "/forms/"+url.PathEscape(formID)+"/responses", nil, false, store.ErrFormNotFound)
	if err != nil {
		return "", err
	}
	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := c.decodeResult(env, &result); err != nil {
		return "", fmt.Errorf("start response: %w", err)
	}
	return result.SessionID, nil
}

// SubmitAnswer records one committed answer on a session.
func (c *Client) SubmitAnswer(sessionID, elementID, value string, completed bool) error {
	req := models.SubmitAnswerRequest{ElementID: elementID, Value: value, Completed: completed}
	_, err := c.do(http.MethodPost, "/responses/"+url.PathEscape(sessionID)+"/answers", req, false, store.ErrSessionNotFound)
	return err
}

// GetAnalyticsSummary fetches the form's aggregate counters.
func (c *Client) GetAnalyticsSummary(formID string) (models.AnalyticsSummary, error) {
	env, err := c.do(http.MethodGet, "/forms/"+url.PathEscape(formID)+"/analytics", nil, true, store.ErrFormNotFound)
	if err != nil {
		return models.AnalyticsSummary{}, err
	}
	var summary models.AnalyticsSummary
	if err := c.decodeResult(env, &summary); err != nil {
		return models.AnalyticsSummary{}, fmt.Errorf("get analytics: %w", err)
	}
	return summary, nil
}

// ListResponses fetches a page of recorded responses, optionally filtered by
// status.
func (c *Client) ListResponses(formID string, page, pageSize int, status models.ResponseStatus) ([]models.FormResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if status != "" {
		q.Set("status", string(status))
	}
	env, err := c.do(http.MethodGet, "/forms/"+url.PathEscape(formID)+"/responses?"+q.Encode(), nil, true, store.ErrFormNotFound)
	if err != nil {
		return nil, err
	}
	var result struct {
		Responses []models.FormResponse `json:"responses"`
	}
	if err := c.decodeResult(env, &result); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return result.Responses, nil
}

// ListElements fetches the form's elements.
func (c *Client) ListElements(formID string) ([]models.Element, error) {
	env, err := c.do(http.MethodGet, "/forms/"+url.PathEscape(formID)+"/elements", nil, false, store.ErrFormNotFound)
	if err != nil {
		return nil, err
	}
	var elements []models.Element
	if err := c.decodeResult(env, &elements); err != nil {
		return nil, fmt.Errorf("list elements: %w", err)
	}
	return elements, nil
}

// CreateElements batch-creates elements, returning them with store-issued
// ids.
func (c *Client) CreateElements(formID string, elements []models.Element) ([]models.Element, error) {
	req := models.CreateElementsRequest{Elements: elements}
	env, err := c.do(http.MethodPost, "/forms/"+url.PathEscape(formID)+"/elements", req, true, store.ErrFormNotFound)
	if err != nil {
		return nil, err
	}
	var created []models.Element
	if err := c.decodeResult(env, &created); err != nil {
		return nil, fmt.Errorf("create elements: %w", err)
	}
	return created, nil
}

// UpdateElement applies a partial update to one element.
func (c *Client) UpdateElement(formID, elementID string, patch models.ElementPatch) (*models.Element, error) {
	path := "/forms/" + url.PathEscape(formID) + "/elements/" + url.PathEscape(elementID)
	env, err := c.do(http.MethodPatch, path, patch, true, store.ErrElementNotFound)
	if err != nil {
		return nil, err
	}
	var updated models.Element
	if err := c.decodeResult(env, &updated); err != nil {
		return nil, fmt.Errorf("update element: %w", err)
	}
	return &updated, nil
}

// DeleteElement removes one element from the form.
func (c *Client) DeleteElement(formID, elementID string) error {
	path := "/forms/" + url.PathEscape(formID) + "/elements/" + url.PathEscape(elementID)
	_, err := c.do(http.MethodDelete, path, nil, true, store.ErrElementNotFound)
	return err
}

// ReorderElements atomically replaces the form's element order.
func (c *Client) ReorderElements(formID string, orderedIDs []string) error {
	req := models.ReorderRequest{OrderedIDs: orderedIDs}
	_, err := c.do(http.MethodPut, "/forms/"+url.PathEscape(formID)+"/order", req, true, store.ErrFormNotFound)
	return err
}

// Close releases client resources. The underlying HTTP client needs no
// teardown.
func (c *Client) Close() error {
	return nil
}
