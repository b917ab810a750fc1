package ragclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buxiuxian/summer-project/pkg/models"
)

func TestHTTPClient_QueryReturnsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/query", r.URL.Path)
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5, req.TopK)
		require.Len(t, req.Keywords, 1)
		assert.Equal(t, "snow", req.Keywords[0].Keyword)

		json.NewEncoder(w).Encode(queryResponse{Results: []models.RetrievedSnippet{
			{Content: "c", Source: "s", Similarity: 0.8},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	results, err := c.Query(context.Background(), []models.Keyword{{Keyword: "snow", Weight: 1}}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.8, results[0].Similarity)
}

func TestHTTPClient_QueryMapsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Query(context.Background(), nil, 5)
	assert.Error(t, err)
}

func TestHTTPClient_QueryEmptyResultsIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(queryResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	results, err := c.Query(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
