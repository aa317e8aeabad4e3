// pkg/semantic/client.go
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lakelog/pkg/config"
	"lakelog/pkg/model"
)

// RESTClient implements Service against the platform's semantic-model REST
// API. Read endpoints are unauthenticated within the workspace; writes go
// through a bearer-token session.
type RESTClient struct {
	baseURL   string
	workspace string
	http      *http.Client
	logger    *zap.Logger
}

// NewRESTClient creates a client for the configured service endpoint
func NewRESTClient(cfg *config.SemanticConfig, workspace string, logger *zap.Logger) *RESTClient {
	return &RESTClient{
		baseURL:   cfg.BaseURL,
		workspace: workspace,
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		logger:    logger.Named("semantic-client"),
	}
}

func (c *RESTClient) modelURL(name string, parts ...string) string {
	u := fmt.Sprintf("%s/workspaces/%s/models/%s",
		c.baseURL, url.PathEscape(c.workspace), url.PathEscape(name))
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

// ModelExists reports whether the named model exists in the workspace
func (c *RESTClient) ModelExists(ctx context.Context, name string) (bool, error) {
	status, err := c.do(ctx, http.MethodGet, c.modelURL(name), "", nil, nil)
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status < 300:
		return true, nil
	default:
		return false, fmt.Errorf("checking model %s: unexpected status %d", name, status)
	}
}

// CreateModel generates the model over the given lakehouse tables
func (c *RESTClient) CreateModel(ctx context.Context, name string, tables []string) error {
	body := map[string]any{
		"name":      name,
		"tables":    tables,
		"overwrite": true,
		"refresh":   false,
	}
	u := fmt.Sprintf("%s/workspaces/%s/models", c.baseURL, url.PathEscape(c.workspace))

	status, err := c.do(ctx, http.MethodPost, u, "", body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("create model %s: unexpected status %d", name, status)
	}

	c.logger.Info("Created semantic model",
		zap.String("model", name),
		zap.Strings("tables", tables))
	return nil
}

// ListRelationships returns the model's current relationship inventory
func (c *RESTClient) ListRelationships(ctx context.Context, name string) ([]model.RelationshipDef, error) {
	var out struct {
		Relationships []model.RelationshipDef `json:"relationships"`
	}

	status, err := c.do(ctx, http.MethodGet, c.modelURL(name, "relationships"), "", nil, &out)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("list relationships of %s: unexpected status %d", name, status)
	}

	return out.Relationships, nil
}

// ListMeasures returns the model's current measure inventory
func (c *RESTClient) ListMeasures(ctx context.Context, name string) ([]model.MeasureDef, error) {
	var out struct {
		Measures []model.MeasureDef `json:"measures"`
	}

	status, err := c.do(ctx, http.MethodGet, c.modelURL(name, "measures"), "", nil, &out)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("list measures of %s: unexpected status %d", name, status)
	}

	return out.Measures, nil
}

// OpenSession opens an authenticated write session against the model
func (c *RESTClient) OpenSession(ctx context.Context, name, token string) (Session, error) {
	body := map[string]any{
		// correlation id ties session-scoped writes together in service logs
		"client_request_id": uuid.New().String(),
		"readonly":          false,
	}

	var out struct {
		SessionID string `json:"session_id"`
	}

	status, err := c.do(ctx, http.MethodPost, c.modelURL(name, "sessions"), token, body, &out)
	if err != nil {
		return nil, err
	}
	if status >= 300 || out.SessionID == "" {
		return nil, fmt.Errorf("open session on %s: unexpected status %d", name, status)
	}

	c.logger.Debug("Opened semantic model session",
		zap.String("model", name),
		zap.String("session_id", out.SessionID))

	return &restSession{client: c, model: name, id: out.SessionID, token: token}, nil
}

// Refresh triggers a model refresh
func (c *RESTClient) Refresh(ctx context.Context, name, token string) error {
	status, err := c.do(ctx, http.MethodPost, c.modelURL(name, "refresh"), token, nil, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("refresh %s: unexpected status %d", name, status)
	}
	return nil
}

// do runs one JSON request and decodes the response into out when non-nil.
// The HTTP status is returned so callers can treat 404 as normal absence.
func (c *RESTClient) do(ctx context.Context, method, u, token string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("semantic model service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// restSession is a write session bound to one server-side session id
type restSession struct {
	client *RESTClient
	model  string
	id     string
	token  string
}

func (s *restSession) sessionURL(parts ...string) string {
	u := s.client.modelURL(s.model, "sessions", url.PathEscape(s.id))
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

func (s *restSession) CreateRelationship(ctx context.Context, def model.RelationshipDef) error {
	return s.write(ctx, http.MethodPost, s.sessionURL("relationships"), def)
}

func (s *restSession) UpdateRelationship(ctx context.Context, def model.RelationshipDef) error {
	return s.write(ctx, http.MethodPut, s.sessionURL("relationships"), def)
}

func (s *restSession) CreateMeasure(ctx context.Context, def model.MeasureDef) error {
	return s.write(ctx, http.MethodPost, s.sessionURL("measures"), def)
}

func (s *restSession) UpdateMeasure(ctx context.Context, def model.MeasureDef) error {
	return s.write(ctx, http.MethodPut, s.sessionURL("measures"), def)
}

func (s *restSession) write(ctx context.Context, method, u string, def any) error {
	status, err := s.client.do(ctx, method, u, s.token, def, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("session write: unexpected status %d", status)
	}
	return nil
}

// Close commits and releases the server-side session
func (s *restSession) Close(ctx context.Context) error {
	status, err := s.client.do(ctx, http.MethodDelete, s.sessionURL(), s.token, nil, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		return fmt.Errorf("close session: unexpected status %d", status)
	}
	return nil
}
