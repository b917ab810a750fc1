// Package sessionstoreclient implements the outbound remote Session
// Store collaborator (spec.md §6 "Outbound remote session-store"),
// used only in production mode (spec.md §4.6). Transport is plain
// JSON/HTTP for the same reason as the other outbound clients — see
// DESIGN.md.
package sessionstoreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// Client is the interface pkg/sessionstore depends on for its
// production-mode backend.
type Client interface {
	Create(ctx context.Context, token string, session *models.ChatSession) error
	Update(ctx context.Context, token string, session *models.ChatSession) error
	Load(ctx context.Context, token, sessionID string) (*models.ChatSession, error)
	Delete(ctx context.Context, token, sessionID string) error
	List(ctx context.Context, token string) ([]*models.ChatSession, error)
}

// HTTPClient calls a remote session-store service over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New creates an HTTPClient with the given base URL and timeout.
func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) Create(ctx context.Context, token string, session *models.ChatSession) error {
	return c.send(ctx, http.MethodPost, "/v1/sessions", token, session, nil)
}

func (c *HTTPClient) Update(ctx context.Context, token string, session *models.ChatSession) error {
	return c.send(ctx, http.MethodPut, "/v1/sessions/"+session.SessionID, token, session, nil)
}

func (c *HTTPClient) Load(ctx context.Context, token, sessionID string) (*models.ChatSession, error) {
	var out models.ChatSession
	if err := c.send(ctx, http.MethodGet, "/v1/sessions/"+sessionID, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Delete(ctx context.Context, token, sessionID string) error {
	return c.send(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, token, nil, nil)
}

func (c *HTTPClient) List(ctx context.Context, token string) ([]*models.ChatSession, error) {
	var out []*models.ChatSession
	if err := c.send(ctx, http.MethodGet, "/v1/sessions", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) send(ctx context.Context, method, path, token string, reqBody, respBody any) error {
	var bodyReader *bytes.Reader
	if reqBody != nil {
		body, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal session-store request: %w", err)
		}
		bodyReader = bytes.NewReader(body)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build session-store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("session-store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("session-store auth error: status %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("session-store %s: %w", path, os.ErrNotExist)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("session-store error: status %d", resp.StatusCode)
	}
	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode session-store response: %w", err)
	}
	return nil
}
