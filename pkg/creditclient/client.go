// Package creditclient implements the outbound credit collaborator
// (spec.md §6 "Outbound credit": check_credits/update_credits).
package creditclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls a remote credit service over JSON/HTTP. No library in the
// retrieved example pack provides a bespoke client for this kind of
// internal REST contract, so net/http is used directly (see DESIGN.md).
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client with the given base URL and per-call timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type creditResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Balance *int   `json:"balance,omitempty"`
}

// CheckCredits implements check_credits(token, n) -> {ok, message, balance?}.
func (c *Client) CheckCredits(ctx context.Context, token string, n int) (bool, string, *int, error) {
	return c.call(ctx, "/credits/check", map[string]any{"token": token, "n": n})
}

// UpdateCredits implements update_credits(token, delta) -> {ok, message, balance?}.
func (c *Client) UpdateCredits(ctx context.Context, token string, delta int) (bool, string, *int, error) {
	return c.call(ctx, "/credits/update", map[string]any{"token": token, "delta": delta})
}

func (c *Client) call(ctx context.Context, path string, body map[string]any) (bool, string, *int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return false, "", nil, fmt.Errorf("marshal credit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return false, "", nil, fmt.Errorf("build credit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, "", nil, fmt.Errorf("credit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return false, "", nil, fmt.Errorf("credit service error: status %d", resp.StatusCode)
	}

	var out creditResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, "", nil, fmt.Errorf("decode credit response: %w", err)
	}
	return out.OK, out.Message, out.Balance, nil
}
