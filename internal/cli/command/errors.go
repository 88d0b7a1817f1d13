package command

import (
	"errors"
	"fmt"

	"github.com/marmos91/omectl/internal/cli/prompt"
	"github.com/marmos91/omectl/internal/cli/resolver"
	"github.com/marmos91/omectl/internal/cli/sessions"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 5
	ExitResource = 66
	ExitInternal = 100
	ExitAborted  = 130
)

var (
	// ErrUsage marks malformed command lines: unknown commands or flags,
	// wrong argument counts, bad flag values.
	ErrUsage = errors.New("usage error")
	// ErrDuplicateCommand is returned when a name is registered twice with
	// different factories.
	ErrDuplicateCommand = errors.New("command already registered")
	// ErrInternal wraps failures that are bugs rather than conditions, such
	// as a recovered handler panic.
	ErrInternal = errors.New("internal error")
)

// ExitError is the result of Context.Die: a handler-chosen exit code with a
// message for stderr. An empty message prints nothing.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Message
}

// Usagef returns an ErrUsage-wrapped error.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch {
	case errors.Is(err, prompt.ErrAborted):
		return ExitAborted
	case errors.Is(err, ErrUsage),
		errors.Is(err, resolver.ErrInvalidOptions),
		errors.Is(err, sessions.ErrInvalidName),
		errors.Is(err, sessions.ErrInvalidProperty):
		return ExitUsage
	case errors.Is(err, sessions.ErrLockTimeout),
		errors.Is(err, sessions.ErrCorruptRecord),
		errors.Is(err, sessions.ErrStoreWrite),
		errors.Is(err, sessions.ErrDuplicate),
		errors.Is(err, sessions.ErrNotFound):
		return ExitResource
	case errors.Is(err, ErrInternal), errors.Is(err, ErrDuplicateCommand):
		return ExitInternal
	default:
		// remote and resolver failures
		return ExitFailure
	}
}
