// Package resolver turns login arguments and the session cache into a live
// server session, reusing a cached session whenever one is compatible.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/omectl/internal/cli/sessions"
	"github.com/marmos91/omectl/internal/logger"
	"github.com/marmos91/omectl/pkg/remote"
)

// ErrKeyRejected means the server refused an explicitly given session key.
var ErrKeyRejected = errors.New("session key rejected")

// maxPasswordAttempts bounds how often an empty password is asked again.
const maxPasswordAttempts = 3

// Prompter asks for missing login values.
type Prompter interface {
	Input(label, defaultValue string) (string, error)
	Password(label string) (string, error)
}

// Session is a resolved, connected session. The caller owns Handle and must
// close it through the adapter.
type Session struct {
	Handle remote.Handle
	Server string
	User   string
	ID     string
	Props  sessions.Properties
	// New is true when the session was created or first recorded by this call.
	New bool
}

// Resolver resolves login options against a store and a server adapter.
type Resolver struct {
	store    *sessions.Store
	adapter  remote.Adapter
	prompter Prompter
}

// New creates a Resolver.
func New(store *sessions.Store, adapter remote.Adapter, prompter Prompter) *Resolver {
	return &Resolver{store: store, adapter: adapter, prompter: prompter}
}

// Resolve returns a live session for opts. Cached sessions of the selected
// server and user are tried newest first; a session whose group or port
// disagrees with opts is skipped, and one the server no longer knows is
// removed from the cache. When nothing can be reused a new session is
// created with a password.
func (r *Resolver) Resolve(ctx context.Context, opts Options) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	server, user, err := r.identity(opts)
	if err != nil {
		return nil, err
	}
	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithIdentity(server, user, ""))
	}

	requested := opts.RequestedProps()

	if opts.Key != "" {
		return r.join(ctx, server, user, opts.Key, requested)
	}

	s, err := r.reuse(ctx, server, user, requested)
	if err != nil || s != nil {
		return s, err
	}

	return r.create(ctx, server, user, opts, requested)
}

// identity picks the server and user from flags, the current pointers, or
// prompts, in that order.
func (r *Resolver) identity(opts Options) (string, string, error) {
	server := opts.Server
	if server == "" {
		h, err := r.store.CurrentHost()
		switch {
		case err == nil:
			server = h
		case errors.Is(err, sessions.ErrNotFound):
			if server, err = r.prompter.Input("Server", sessions.DefaultHost); err != nil {
				return "", "", err
			}
		default:
			return "", "", err
		}
	}
	if err := sessions.ValidateName("server", server); err != nil {
		return "", "", err
	}

	user := opts.User
	if user == "" {
		u, err := r.store.CurrentUser(server)
		switch {
		case err == nil:
			user = u
		case errors.Is(err, sessions.ErrNotFound):
			if user, err = r.prompter.Input("Username", sessions.OSUser()); err != nil {
				return "", "", err
			}
		default:
			return "", "", err
		}
	}
	if err := sessions.ValidateName("user", user); err != nil {
		return "", "", err
	}

	return server, user, nil
}

// reuse returns the newest cached session that is compatible and alive, or
// nil when there is none.
func (r *Resolver) reuse(ctx context.Context, server, user string, requested sessions.Properties) (*Session, error) {
	ids, err := r.store.Available(server, user)
	if err != nil {
		return nil, err
	}

	for _, sid := range ids {
		cached, err := r.store.Get(server, user, sid)
		if err != nil {
			if errors.Is(err, sessions.ErrCorruptRecord) || errors.Is(err, sessions.ErrNotFound) {
				logger.DebugCtx(ctx, "cached session unreadable", logger.Session(sid), logger.Err(err))
				continue
			}
			return nil, err
		}

		if c := sessions.Conflicts(cached, requested); c != "" {
			logger.DebugCtx(ctx, "cached session does not match request", logger.Session(sid), logger.KeyReason, c)
			continue
		}

		h, err := r.probe(ctx, server, user, sid, cached)
		if err != nil {
			if !remote.IsRetryable(err) {
				return nil, err
			}
			logger.InfoCtx(ctx, "discarding stale session", logger.Session(sid), logger.Err(err))
			if err := r.store.Remove(server, user, sid); err != nil && !errors.Is(err, sessions.ErrNotFound) {
				return nil, err
			}
			continue
		}

		if err := r.markUsed(server, user, sid); err != nil {
			r.adapter.Close(h)
			return nil, err
		}

		logger.DebugCtx(ctx, "reusing cached session", logger.Session(sid))
		return &Session{Handle: h, Server: server, User: user, ID: sid, Props: cached}, nil
	}

	return nil, nil
}

// join attaches to an explicitly given session id. There is no password
// fallback: a refused key fails the call.
func (r *Resolver) join(ctx context.Context, server, user, sid string, requested sessions.Properties) (*Session, error) {
	if err := sessions.ValidateName("session", sid); err != nil {
		return nil, err
	}

	cached, err := r.store.Get(server, user, sid)
	known := err == nil
	if err != nil && !errors.Is(err, sessions.ErrNotFound) {
		return nil, err
	}

	attachProps := requested
	if known {
		attachProps = cached.Clone().Merge(requested)
	}

	h, err := r.probe(ctx, server, user, sid, attachProps)
	if err != nil {
		if errors.Is(err, remote.ErrSessionInvalid) {
			return nil, fmt.Errorf("%w: %s@%s session %s: %v", ErrKeyRejected, user, server, logger.Redact(sid), err)
		}
		return nil, err
	}

	if known {
		if err := r.markUsed(server, user, sid); err != nil {
			r.adapter.Close(h)
			return nil, err
		}
		return &Session{Handle: h, Server: server, User: user, ID: sid, Props: cached}, nil
	}

	props := requested.Clone()
	if err := r.store.Add(server, user, sid, props); err != nil {
		r.adapter.Close(h)
		return nil, err
	}
	props[sessions.KeyHost], props[sessions.KeyUser], props[sessions.KeySess] = server, user, sid

	logger.DebugCtx(ctx, "recorded joined session", logger.Session(sid))
	return &Session{Handle: h, Server: server, User: user, ID: sid, Props: props, New: true}, nil
}

// create authenticates with a password and records the new session. The
// server call and the record write hold the store lock together.
func (r *Resolver) create(ctx context.Context, server, user string, opts Options, requested sessions.Properties) (*Session, error) {
	password := opts.Password
	if password == "" {
		if opts.NoPassword {
			return nil, fmt.Errorf("%w: no reusable session for %s@%s and password prompting is disabled",
				remote.ErrAuthFailed, user, server)
		}
		var err error
		if password, err = r.askPassword(); err != nil {
			return nil, err
		}
	}

	props := requested.Clone()
	props[sessions.KeyHost] = server
	props[sessions.KeyUser] = user

	var handle remote.Handle
	sid, err := r.store.Create(server, user, props, func() (string, error) {
		h, id, err := r.adapter.Authenticate(ctx, server, user, password, props)
		if err != nil {
			return "", err
		}
		handle = h
		return id, nil
	})
	if err != nil {
		if handle != nil {
			r.adapter.Close(handle)
		}
		return nil, err
	}

	props[sessions.KeySess] = sid
	logger.InfoCtx(ctx, "created session", logger.Session(sid))
	return &Session{Handle: handle, Server: server, User: user, ID: sid, Props: props, New: true}, nil
}

func (r *Resolver) askPassword() (string, error) {
	for i := 0; i < maxPasswordAttempts; i++ {
		pw, err := r.prompter.Password("Password")
		if err != nil {
			return "", err
		}
		if pw != "" {
			return pw, nil
		}
	}
	return "", fmt.Errorf("%w: no password given after %d attempts", remote.ErrAuthFailed, maxPasswordAttempts)
}

// probe attaches to sid and checks it is alive. The handle is closed on failure.
func (r *Resolver) probe(ctx context.Context, server, user, sid string, props sessions.Properties) (remote.Handle, error) {
	h, err := r.adapter.Attach(ctx, server, user, sid, props)
	if err != nil {
		return nil, err
	}
	if err := r.adapter.KeepAlive(ctx, h); err != nil {
		r.adapter.Close(h)
		return nil, err
	}
	return h, nil
}

func (r *Resolver) markUsed(server, user, sid string) error {
	if err := r.store.Touch(server, user, sid); err != nil {
		return err
	}
	return r.store.SetCurrent(server, user, sid)
}
