package sessions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDirName is the per-user directory holding client state.
	DefaultDirName = ".omero"
	// SessionsDirName is the store directory below DefaultDirName.
	SessionsDirName = "sessions"

	// LockFileName is the advisory lock guarding the whole store.
	LockFileName = "._LOCK_"
	// HostFileName names the last used server.
	HostFileName = "._LASTHOST_"
	// UserFileName names the last used user of a server.
	UserFileName = "._LASTUSER_"
	// SessFileName names the last used session of a server/user pair.
	SessFileName = "._LASTSESS_"

	// FilePermissions for record and pointer files (read/write for owner only).
	FilePermissions = 0600
	// DirPermissions for store directories.
	DirPermissions = 0700

	// EnvSessionDir overrides the full store base directory.
	EnvSessionDir = "SESSION_DIR_OVERRIDE"
	// EnvUserHome overrides the user home the base directory derives from.
	EnvUserHome = "USER_HOME_OVERRIDE"

	hiddenPrefix = "._"
)

// Layout maps (server, user, session-id) triples to paths below Base.
//
//	<base>/._LOCK_
//	<base>/._LASTHOST_
//	<base>/<server>/._LASTUSER_
//	<base>/<server>/<user>/._LASTSESS_
//	<base>/<server>/<user>/<session-id>
type Layout struct {
	Base string
}

// ResolveBase returns the store base directory. sessionDir wins when set,
// otherwise the base derives from userHome, falling back to the OS home.
func ResolveBase(sessionDir, userHome string) (string, error) {
	if sessionDir != "" {
		return filepath.Clean(sessionDir), nil
	}
	if userHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		userHome = home
	}
	return filepath.Join(userHome, DefaultDirName, SessionsDirName), nil
}

// DefaultBase resolves the base directory from the environment.
func DefaultBase() (string, error) {
	return ResolveBase(os.Getenv(EnvSessionDir), os.Getenv(EnvUserHome))
}

// LockFile returns the path of the store lock.
func (l Layout) LockFile() string {
	return filepath.Join(l.Base, LockFileName)
}

// HostFile returns the path of the last-host pointer.
func (l Layout) HostFile() string {
	return filepath.Join(l.Base, HostFileName)
}

// ServerDir returns the directory holding a server's users.
func (l Layout) ServerDir(server string) string {
	return filepath.Join(l.Base, server)
}

// UserFile returns the path of the last-user pointer of a server.
func (l Layout) UserFile(server string) string {
	return filepath.Join(l.Base, server, UserFileName)
}

// UserDir returns the directory holding a user's session records.
func (l Layout) UserDir(server, user string) string {
	return filepath.Join(l.Base, server, user)
}

// SessFile returns the path of the last-session pointer of a server/user pair.
func (l Layout) SessFile(server, user string) string {
	return filepath.Join(l.Base, server, user, SessFileName)
}

// Record returns the path of a session record.
func (l Layout) Record(server, user, sess string) string {
	return filepath.Join(l.Base, server, user, sess)
}

// ValidateName checks that name can be used verbatim as a path component.
// kind is used in the error message ("server", "user", "session").
func ValidateName(kind, name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty %s", ErrInvalidName, kind)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	case strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidName, kind, name)
	case strings.HasPrefix(name, hiddenPrefix):
		return fmt.Errorf("%w: %s %q starts with %q", ErrInvalidName, kind, name, hiddenPrefix)
	case strings.ContainsAny(name, "\x00\n\r"):
		return fmt.Errorf("%w: %s %q contains control characters", ErrInvalidName, kind, name)
	}
	return nil
}

func validateScope(server, user string) error {
	if err := ValidateName("server", server); err != nil {
		return err
	}
	return ValidateName("user", user)
}

func validateIdentity(server, user, sess string) error {
	if err := validateScope(server, user); err != nil {
		return err
	}
	return ValidateName("session", sess)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, hiddenPrefix)
}
