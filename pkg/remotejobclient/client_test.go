package remotejobclient

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

func TestHTTPClient_SubmitSucceedsOnMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/submit", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(submitResponse{Result: "Job submitted!"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Submit(context.Background(), "tok", "proj", []models.RemoteJobTask{{Name: "t1"}}, []models.DataDict{{"a": 1}})
	assert.NoError(t, err)
}

func TestHTTPClient_SubmitRejectedWithoutMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submitResponse{Result: "bad parameters"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Submit(context.Background(), "tok", "proj", nil, nil)
	assert.ErrorIs(t, err, ErrSubmissionRejected)
}

func TestHTTPClient_StatusReportsDoneAndFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusResponse{Done: true, Failed: false, Message: "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	done, failed, msg, err := c.Status(context.Background(), "tok", "proj", "task")
	require.NoError(t, err)
	assert.True(t, done)
	assert.False(t, failed)
	assert.Equal(t, "ok", msg)
}

func TestHTTPClient_CheckErrorReturnsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(checkErrorResponse{Message: "Jobs completed succesfully"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	msg, err := c.CheckError(context.Background(), "tok", "proj", "task", "snow")
	require.NoError(t, err)
	assert.True(t, IsSuccessMessage(msg))
}

func TestHTTPClient_AuthErrorStatusIsMappedToError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Submit(context.Background(), "tok", "proj", nil, nil)
	assert.Error(t, err)
}

func TestIsSuccessMessage_EmptyMessageIsSuccess(t *testing.T) {
	assert.True(t, IsSuccessMessage(""))
}

func TestIsSuccessMessage_UnrelatedMessageIsFailure(t *testing.T) {
	assert.False(t, IsSuccessMessage("ValueError: something went wrong"))
}
