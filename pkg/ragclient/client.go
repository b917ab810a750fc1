// Package ragclient implements the outbound RAG collaborator (spec.md
// §6 "Outbound RAG": keyword-scored retrieval against a domain
// knowledge base). Transport is plain JSON/HTTP for the same reason as
// pkg/llmclient — see DESIGN.md.
package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// Client is the interface pkg/knowledge depends on. Results reuse
// models.RetrievedSnippet, grounded on original_source's
// query_domain_science_db_structured result shape (source, similarity,
// content, optional file mapping id).
type Client interface {
	Query(ctx context.Context, keywords []models.Keyword, topK int) ([]models.RetrievedSnippet, error)
}

// HTTPClient calls a remote RAG retrieval service over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New creates an HTTPClient with the given base URL and timeout.
func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type queryRequest struct {
	Keywords []models.Keyword `json:"keywords"`
	TopK     int              `json:"top_k"`
}

type queryResponse struct {
	Results []models.RetrievedSnippet `json:"results"`
}

// Query implements the retrieval operation.
func (c *HTTPClient) Query(ctx context.Context, keywords []models.Keyword, topK int) ([]models.RetrievedSnippet, error) {
	body, err := json.Marshal(queryRequest{Keywords: keywords, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal rag request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rag request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rag request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("rag service error: status %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rag response: %w", err)
	}
	return out.Results, nil
}
