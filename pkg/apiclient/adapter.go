package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/omectl/pkg/remote"
)

// DefaultPort is the server port used when neither the server string nor the
// session properties name one.
const DefaultPort = 4064

// Adapter implements remote.Adapter over the REST API.
type Adapter struct {
	// Scheme is "http" or "https". Empty means http.
	Scheme string
	// DefaultPort is used when props carry no "port". Zero means DefaultPort.
	DefaultPort int
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// HTTPClient overrides the transport. Its Timeout is left untouched.
	HTTPClient *http.Client
}

var (
	_ remote.Adapter    = (*Adapter)(nil)
	_ remote.Terminator = (*Adapter)(nil)
)

// Session is the handle returned by Authenticate and Attach.
type Session struct {
	client *Client
	id     string
	server string
	user   string
	closed bool
}

// SessionID returns the server-assigned session id.
func (s *Session) SessionID() string { return s.id }

// Server returns the server the session lives on.
func (s *Session) Server() string { return s.server }

// User returns the user the session belongs to.
func (s *Session) User() string { return s.user }

// Client returns an API client authenticated as this session.
func (s *Session) Client() *Client { return s.client }

// BaseURL builds the API root for server. A server given as a full URL is
// used as is; otherwise scheme and port are added, props["port"] winning over
// the adapter default.
func (a *Adapter) BaseURL(server string, props map[string]string) string {
	if strings.Contains(server, "://") {
		return strings.TrimRight(server, "/")
	}

	scheme := a.Scheme
	if scheme == "" {
		scheme = "http"
	}

	host := server
	if _, _, err := net.SplitHostPort(server); err != nil {
		port := props["port"]
		if port == "" {
			p := a.DefaultPort
			if p == 0 {
				p = DefaultPort
			}
			port = strconv.Itoa(p)
		}
		host = net.JoinHostPort(strings.Trim(server, "[]"), port)
	}

	return (&url.URL{Scheme: scheme, Host: host}).String()
}

func (a *Adapter) client(server string, props map[string]string) *Client {
	c := New(a.BaseURL(server, props))
	if a.HTTPClient != nil {
		return c.WithHTTPClient(a.HTTPClient)
	}
	if a.Timeout > 0 {
		c.httpClient.Timeout = a.Timeout
	}
	return c
}

// Authenticate opens a new server session with a password.
func (a *Adapter) Authenticate(ctx context.Context, server, user, password string, props map[string]string) (remote.Handle, string, error) {
	c := a.client(server, props)

	info, err := c.CreateSession(ctx, CreateSessionRequest{
		Username:   user,
		Password:   password,
		Group:      props["group"],
		Properties: passthrough(props),
	})
	if err != nil {
		return nil, "", classify(err, remote.ErrAuthFailed)
	}
	if info.ID == "" {
		return nil, "", fmt.Errorf("server %s returned an empty session id", server)
	}

	return &Session{client: c.WithToken(info.ID), id: info.ID, server: server, user: user}, info.ID, nil
}

// Attach joins an existing session. Unknown or expired ids are reported as
// remote.ErrSessionInvalid.
func (a *Adapter) Attach(ctx context.Context, server, user, sid string, props map[string]string) (remote.Handle, error) {
	c := a.client(server, props).WithToken(sid)

	info, err := c.GetSession(ctx, sid)
	if err != nil {
		return nil, classify(err, remote.ErrSessionInvalid)
	}
	if info.Username != "" && info.Username != user {
		return nil, fmt.Errorf("%w: session %s belongs to %s", remote.ErrSessionInvalid, sid, info.Username)
	}

	return &Session{client: c, id: sid, server: server, user: user}, nil
}

// KeepAlive pings the session behind h.
func (a *Adapter) KeepAlive(ctx context.Context, h remote.Handle) error {
	s, err := session(h)
	if err != nil {
		return err
	}
	if err := s.client.KeepAlive(ctx, s.id); err != nil {
		return classify(err, remote.ErrSessionInvalid)
	}
	return nil
}

// Terminate ends the session on the server.
func (a *Adapter) Terminate(ctx context.Context, h remote.Handle) error {
	s, err := session(h)
	if err != nil {
		return err
	}
	if err := s.client.DeleteSession(ctx, s.id); err != nil {
		return classify(err, remote.ErrSessionInvalid)
	}
	return nil
}

// Close drops idle connections held for h. The server session stays alive.
func (a *Adapter) Close(h remote.Handle) {
	s, ok := h.(*Session)
	if !ok || s == nil || s.closed {
		return
	}
	s.closed = true
	if a.HTTPClient == nil {
		s.client.httpClient.CloseIdleConnections()
	}
}

func session(h remote.Handle) (*Session, error) {
	s, ok := h.(*Session)
	if !ok || s == nil {
		return nil, fmt.Errorf("apiclient: foreign handle %T", h)
	}
	if s.closed {
		return nil, fmt.Errorf("apiclient: session %s handle is closed", s.id)
	}
	return s, nil
}

// passthrough returns the props the server is not told about through
// dedicated request fields.
func passthrough(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		switch k {
		case "host", "user", "sess", "group", "port":
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// classify maps transport and API failures to remote error kinds. rejected is
// the kind reported when the server refuses the credentials.
func classify(err error, rejected error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsTimeout():
			return fmt.Errorf("%w: %v", remote.ErrTimeout, apiErr)
		case apiErr.IsAuthError(), apiErr.IsNotFound(), apiErr.IsSessionExpired():
			return fmt.Errorf("%w: %v", rejected, apiErr)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", remote.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", remote.ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	return err
}
