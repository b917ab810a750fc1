package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_CompleteReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/complete", r.URL.Path)
		var req completeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.HumanText)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completeResponse{Text: "world"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	text, err := c.Complete(context.Background(), "hello", "system", CompletionOptions{Model: "default"})
	require.NoError(t, err)
	assert.Equal(t, "world", text)
}

func TestHTTPClient_CompleteMapsServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Complete(context.Background(), "hello", "system", CompletionOptions{})
	assert.Error(t, err)
}

func TestHTTPClient_CompleteMapsAuthErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Complete(context.Background(), "hello", "system", CompletionOptions{})
	assert.Error(t, err)
}

func TestHTTPClient_CompleteSurfacesContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "hello", "system", CompletionOptions{})
	assert.Error(t, err)
}
