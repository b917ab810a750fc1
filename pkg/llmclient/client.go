// Package llmclient implements the outbound LLM collaborator (spec.md
// §6 "Outbound LLM": one text-completion operation). Generalizes the
// shape of tarsy's pkg/agent/llm_client.go LLMClient.Generate interface
// (session/execution-scoped, streaming chunks) down to the single
// blocking call this spec requires; transport is plain JSON/HTTP since
// the teacher's concrete transport (gRPC against generated protobuf
// stubs not present in the retrieved pack) could not be reproduced
// without fabricating generated code — see DESIGN.md.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CompletionOptions configures one call, matching spec.md §6's
// "supporting model/temperature/max-tokens configuration per call".
type CompletionOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client is the interface pkg/classifier, pkg/knowledge, and
// pkg/remotejob depend on; production code uses HTTPClient, tests
// substitute a fake.
type Client interface {
	Complete(ctx context.Context, humanText, systemText string, opts CompletionOptions) (string, error)
}

// HTTPClient calls a remote LLM-completion service over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New creates an HTTPClient with the given base URL and per-call timeout
// (spec.md §5: "each LLM call has its own timeout, default 120s").
func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type completeRequest struct {
	HumanText   string  `json:"human_text"`
	SystemText  string  `json:"system_text,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type completeResponse struct {
	Text string `json:"text"`
}

// Complete implements the single text-completion operation.
func (c *HTTPClient) Complete(ctx context.Context, humanText, systemText string, opts CompletionOptions) (string, error) {
	body, err := json.Marshal(completeRequest{
		HumanText:   humanText,
		SystemText:  systemText,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("llm service error: status %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("llm auth error: status %d", resp.StatusCode)
	}

	var out completeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	return out.Text, nil
}
