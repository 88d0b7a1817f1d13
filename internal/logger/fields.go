package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
const (
	KeyCommand = "command"
	KeyServer  = "server"
	KeyUser    = "user"
	KeySession = "session"
	KeyPath    = "path"
	KeyLine    = "line"
	KeyCode    = "code"
	KeyAttempt = "attempt"
	KeyError   = "error"
	KeyReason  = "reason"
	KeyRequest = "request_id"
)

// Server returns an attribute naming the remote server.
func Server(name string) slog.Attr {
	return slog.String(KeyServer, name)
}

// User returns an attribute naming the login user.
func User(name string) slog.Attr {
	return slog.String(KeyUser, name)
}

// Session returns an attribute naming the session id.
//
// Session ids are bearer credentials; only a short prefix is logged.
func Session(id string) slog.Attr {
	return slog.String(KeySession, Redact(id))
}

// Path returns an attribute naming a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Attempt returns the retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Err returns an error attribute; nil errors render as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Redact keeps the first eight characters of a secret.
func Redact(secret string) string {
	if len(secret) <= 8 {
		return secret
	}
	return secret[:8] + "..."
}
