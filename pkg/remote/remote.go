// Package remote defines the narrow contract between the omectl command layer
// and an object server. The credential resolver only needs four capabilities:
// create a session from a password, attach to an existing session id, check
// that an attached session is alive, and release a handle.
package remote

import (
	"context"
	"errors"
)

// Error kinds reported by adapters. Implementations wrap these so callers can
// branch with errors.Is.
var (
	// ErrAuthFailed means the server rejected the username/password pair.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrSessionInvalid means the session id is unknown or expired on the server.
	ErrSessionInvalid = errors.New("session is no longer valid")

	// ErrTimeout means the server did not answer in time.
	ErrTimeout = errors.New("server timed out")

	// ErrUnavailable means the server could not be reached at all.
	ErrUnavailable = errors.New("server unavailable")
)

// Handle is a live connection to one server session.
type Handle interface {
	SessionID() string
}

// Adapter connects to servers. Handles returned by Authenticate and Attach
// must be released with Close.
type Adapter interface {
	// Authenticate creates a new server session and returns its handle and id.
	Authenticate(ctx context.Context, server, user, password string, props map[string]string) (Handle, string, error)

	// Attach joins the existing session sid without credentials.
	Attach(ctx context.Context, server, user, sid string, props map[string]string) (Handle, error)

	// KeepAlive pings the session behind h.
	KeepAlive(ctx context.Context, h Handle) error

	// Close releases h locally. The server session stays alive.
	Close(h Handle)
}

// Terminator is implemented by adapters that can end a server session.
type Terminator interface {
	Terminate(ctx context.Context, h Handle) error
}

// IsRetryable reports whether err says the cached session should be discarded
// and the next candidate tried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSessionInvalid) || errors.Is(err, ErrTimeout)
}
