package apiclient

import (
	"context"
	"time"
)

// CreateSessionRequest is the request to open a server session.
type CreateSessionRequest struct {
	Username   string            `json:"username"`
	Password   string            `json:"password"`
	Group      string            `json:"group,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// SessionInfo describes a server session.
type SessionInfo struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Group      string    `json:"group,omitempty"`
	TimeToIdle int64     `json:"time_to_idle,omitempty"` // seconds
	CreatedAt  time.Time `json:"created_at,omitempty"`
	LastActive time.Time `json:"last_active,omitempty"`
}

// TimeToIdleDuration returns TimeToIdle as a time.Duration.
func (s *SessionInfo) TimeToIdleDuration() time.Duration {
	return time.Duration(s.TimeToIdle) * time.Second
}

// CreateSession authenticates and opens a new server session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	return createResource[SessionInfo](ctx, c, "/api/v1/sessions", req)
}

// GetSession returns the server's view of session id.
func (c *Client) GetSession(ctx context.Context, id string) (*SessionInfo, error) {
	return getResource[SessionInfo](ctx, c, resourcePath("/api/v1/sessions/%s", id))
}

// KeepAlive resets the idle timer of session id.
func (c *Client) KeepAlive(ctx context.Context, id string) error {
	return c.post(ctx, resourcePath("/api/v1/sessions/%s/keepalive", id), nil, nil)
}

// DeleteSession ends session id on the server.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return deleteResource(ctx, c, resourcePath("/api/v1/sessions/%s", id))
}
