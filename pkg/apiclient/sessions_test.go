package apiclient

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

func TestCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req CreateSessionRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "testuser", req.Username)
		assert.Equal(t, "password123", req.Password)
		assert.Equal(t, "lab", req.Group)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(SessionInfo{
			ID:         "sess-123",
			Username:   "testuser",
			Group:      "lab",
			TimeToIdle: 600,
		})
	}))
	defer server.Close()

	client := New(server.URL)
	info, err := client.CreateSession(context.Background(), CreateSessionRequest{
		Username: "testuser",
		Password: "password123",
		Group:    "lab",
	})

	require.NoError(t, err)
	assert.Equal(t, "sess-123", info.ID)
	assert.Equal(t, "lab", info.Group)
	assert.Equal(t, 10*time.Minute, info.TimeToIdleDuration())
}

func TestCreateSession_InvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(APIError{
			Code:    "UNAUTHORIZED",
			Message: "Invalid username or password",
		})
	}))
	defer server.Close()

	client := New(server.URL)
	info, err := client.CreateSession(context.Background(), CreateSessionRequest{Username: "bad", Password: "bad"})

	assert.Nil(t, info)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsAuthError())
}

func TestGetSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/sessions/sess-123", r.URL.Path)
		assert.Equal(t, "Bearer sess-123", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(SessionInfo{ID: "sess-123", Username: "testuser"})
	}))
	defer server.Close()

	info, err := New(server.URL).WithToken("sess-123").GetSession(context.Background(), "sess-123")
	require.NoError(t, err)
	assert.Equal(t, "testuser", info.Username)
}

func TestKeepAliveAndDelete(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New(server.URL).WithToken("sess-123")
	require.NoError(t, client.KeepAlive(context.Background(), "sess-123"))
	require.NoError(t, client.DeleteSession(context.Background(), "sess-123"))

	assert.Equal(t, []string{
		"POST /api/v1/sessions/sess-123/keepalive",
		"DELETE /api/v1/sessions/sess-123",
	}, calls)
}
