// Package sessions provides the on-disk session cache shared by every omectl
// process of a user.
//
// The store is a directory tree of per-(server, user, session-id) records plus
// three "current" pointer files naming the last used server, the last user of
// each server and the last session of each server/user pair. Every mutation
// runs under an exclusive flock on <base>/._LOCK_ and every read under a shared
// one, so cooperating processes never observe a half-applied change. Files are
// written to a hidden temporary sibling and renamed into place.
package sessions

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/omectl/internal/logger"
)

// DefaultHost is reported by LastHost when no server was ever used.
const DefaultHost = "localhost"

// Config configures a Store.
type Config struct {
	// Base is the store directory. Empty resolves it from the environment.
	Base string
	// Lock bounds lock acquisition. The zero value uses DefaultLockPolicy.
	Lock LockPolicy
}

// Entry is one record together with its last-used time.
type Entry struct {
	Server  string     `json:"server" yaml:"server"`
	User    string     `json:"user" yaml:"user"`
	ID      string     `json:"id" yaml:"id"`
	Props   Properties `json:"properties" yaml:"properties"`
	ModTime time.Time  `json:"last_used" yaml:"last_used"`
}

// Store manages session records below a base directory.
type Store struct {
	layout Layout
	policy LockPolicy

	corruptOnce sync.Once
}

// NewStore opens (creating if needed) the store described by cfg.
func NewStore(cfg Config) (*Store, error) {
	base := cfg.Base
	if base == "" {
		var err error
		if base, err = DefaultBase(); err != nil {
			return nil, err
		}
	}

	policy := cfg.Lock
	if policy.Attempts == 0 && policy.Interval == 0 {
		policy = DefaultLockPolicy()
	}

	if err := os.MkdirAll(base, DirPermissions); err != nil {
		return nil, fmt.Errorf("%w: cannot create session directory %s: %v", ErrStoreWrite, base, err)
	}

	return &Store{
		layout: Layout{Base: base},
		policy: policy,
	}, nil
}

// Base returns the store directory.
func (s *Store) Base() string {
	return s.layout.Base
}

// Layout returns the path layout of the store.
func (s *Store) Layout() Layout {
	return s.layout
}

func (s *Store) withLock(exclusive bool, fn func() error) error {
	if err := os.MkdirAll(s.layout.Base, DirPermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	l, err := acquireLock(s.layout.LockFile(), exclusive, s.policy)
	if err != nil {
		return err
	}
	defer l.release()
	return fn()
}

// Add creates the record (server, user, sess) with props merged with the
// identity keys and points all three current pointers at it.
func (s *Store) Add(server, user, sess string, props Properties) error {
	if err := validateIdentity(server, user, sess); err != nil {
		return err
	}
	return s.withLock(true, func() error {
		return s.addLocked(server, user, sess, props)
	})
}

// Create runs login under the exclusive store lock and records the session id
// it returns. Remote authentication and the record write are therefore one
// critical section with respect to other processes.
//
// Errors returned by login are passed through untouched. A failure to record
// the session is reported as ErrStoreWrite.
func (s *Store) Create(server, user string, props Properties, login func() (string, error)) (string, error) {
	if err := validateScope(server, user); err != nil {
		return "", err
	}

	var sess string
	err := s.withLock(true, func() error {
		id, err := login()
		if err != nil {
			return err
		}
		if err := ValidateName("session", id); err != nil {
			return fmt.Errorf("%w: server issued unusable session id: %w", ErrStoreWrite, err)
		}
		sess = id
		if err := s.addLocked(server, user, id, props); err != nil {
			if errors.Is(err, ErrStoreWrite) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrStoreWrite, err)
		}
		return nil
	})
	return sess, err
}

func (s *Store) addLocked(server, user, sess string, props Properties) error {
	path := s.layout.Record(server, user, sess)
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("%w: %s/%s/%s", ErrDuplicate, server, user, sess)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	var buf bytes.Buffer
	if err := EncodeRecord(&buf, props.withIdentity(server, user, sess)); err != nil {
		return err
	}
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return err
	}

	logger.Debug("session recorded", logger.Server(server), logger.User(user), logger.Session(sess))
	return s.setCurrentLocked(server, user, sess)
}

// Get returns a copy of the record payload. The identity keys are always present.
func (s *Store) Get(server, user, sess string) (Properties, error) {
	if err := validateIdentity(server, user, sess); err != nil {
		return nil, err
	}
	var props Properties
	err := s.withLock(false, func() error {
		var err error
		props, _, err = s.readRecord(server, user, sess)
		return err
	})
	if errors.Is(err, ErrCorruptRecord) {
		s.warnCorrupt(err)
	}
	return props, err
}

// Lookup is Get plus the record's last-used time.
func (s *Store) Lookup(server, user, sess string) (Entry, error) {
	if err := validateIdentity(server, user, sess); err != nil {
		return Entry{}, err
	}
	e := Entry{Server: server, User: user, ID: sess}
	err := s.withLock(false, func() error {
		var err error
		e.Props, e.ModTime, err = s.readRecord(server, user, sess)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCorruptRecord) {
			s.warnCorrupt(err)
		}
		return Entry{}, err
	}
	return e, nil
}

func (s *Store) readRecord(server, user, sess string) (Properties, time.Time, error) {
	path := s.layout.Record(server, user, sess)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, server, user, sess)
		}
		return nil, time.Time{}, fmt.Errorf("read %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, time.Time{}, fmt.Errorf("%w: %s is a directory", ErrCorruptRecord, path)
	}

	props, err := DecodeRecord(f)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := props.checkIdentity(server, user, sess); err != nil {
		return nil, time.Time{}, fmt.Errorf("%s: %w", path, err)
	}
	return props, info.ModTime(), nil
}

// Remove deletes the record. Current pointers that named it fall back to the
// most recently used remaining sibling at each level, or are deleted when no
// sibling remains.
func (s *Store) Remove(server, user, sess string) error {
	if err := validateIdentity(server, user, sess); err != nil {
		return err
	}
	return s.withLock(true, func() error {
		return s.removeLocked(server, user, sess)
	})
}

func (s *Store) removeLocked(server, user, sess string) error {
	path := s.layout.Record(server, user, sess)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s/%s", ErrNotFound, server, user, sess)
		}
		return fmt.Errorf("%w: remove %s: %v", ErrStoreWrite, path, err)
	}
	logger.Debug("session removed", logger.Server(server), logger.User(user), logger.Session(sess))
	return s.repairPointers(server, user, sess)
}

// repairPointers restores the pointer invariants after sess was removed.
func (s *Store) repairPointers(server, user, sess string) error {
	remaining, err := listChildren(s.layout.UserDir(server, user), false)
	if err != nil {
		return err
	}

	sessFile := s.layout.SessFile(server, user)
	if len(remaining) == 0 {
		if err := removePointer(sessFile); err != nil {
			return err
		}
		_ = os.Remove(s.layout.UserDir(server, user))
	} else if cur, err := readPointer(sessFile); err != nil || cur == sess {
		if err := writePointer(sessFile, remaining[0].name); err != nil {
			return err
		}
	}

	userFile := s.layout.UserFile(server)
	nextUser, _, err := s.newestUser(server)
	if err != nil {
		return err
	}
	if nextUser == "" {
		if err := removePointer(userFile); err != nil {
			return err
		}
		_ = os.Remove(s.layout.ServerDir(server))
	} else if cur, err := readPointer(userFile); err == nil && cur == user && len(remaining) == 0 {
		if err := writePointer(userFile, nextUser); err != nil {
			return err
		}
	}

	if nextUser != "" {
		return nil
	}
	cur, err := readPointer(s.layout.HostFile())
	if err != nil || cur != server {
		return nil
	}
	nextServer, err := s.newestServer()
	if err != nil {
		return err
	}
	if nextServer == "" {
		return removePointer(s.layout.HostFile())
	}
	return writePointer(s.layout.HostFile(), nextServer)
}

// newestUser returns the user of server owning the most recently used record.
func (s *Store) newestUser(server string) (string, time.Time, error) {
	users, err := listChildren(s.layout.ServerDir(server), true)
	if err != nil {
		return "", time.Time{}, err
	}
	var best string
	var bestTime time.Time
	for _, u := range users {
		sessions, err := listChildren(s.layout.UserDir(server, u.name), false)
		if err != nil {
			return "", time.Time{}, err
		}
		if len(sessions) > 0 && (best == "" || sessions[0].mod.After(bestTime)) {
			best, bestTime = u.name, sessions[0].mod
		}
	}
	return best, bestTime, nil
}

// newestServer returns the server owning the most recently used record.
func (s *Store) newestServer() (string, error) {
	servers, err := listChildren(s.layout.Base, true)
	if err != nil {
		return "", err
	}
	var best string
	var bestTime time.Time
	for _, srv := range servers {
		u, t, err := s.newestUser(srv.name)
		if err != nil {
			return "", err
		}
		if u != "" && (best == "" || t.After(bestTime)) {
			best, bestTime = srv.name, t
		}
	}
	return best, nil
}

// Available lists the session ids of (server, user), most recently used first.
func (s *Store) Available(server, user string) ([]string, error) {
	if err := validateScope(server, user); err != nil {
		return nil, err
	}
	var ids []string
	err := s.withLock(false, func() error {
		children, err := listChildren(s.layout.UserDir(server, user), false)
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(children))
		for _, c := range children {
			ids = append(ids, c.name)
		}
		return nil
	})
	return ids, err
}

// Contents returns every readable record as {server: {user: {sess: props}}}.
// Corrupt records are skipped.
func (s *Store) Contents() (map[string]map[string]map[string]Properties, error) {
	out := make(map[string]map[string]map[string]Properties)
	err := s.withLock(false, func() error {
		return s.walk("", "", func(e Entry) {
			users, ok := out[e.Server]
			if !ok {
				users = make(map[string]map[string]Properties)
				out[e.Server] = users
			}
			sessions, ok := users[e.User]
			if !ok {
				sessions = make(map[string]Properties)
				users[e.User] = sessions
			}
			sessions[e.ID] = e.Props
		})
	})
	return out, err
}

// List returns every readable record ordered by server, user and most
// recently used first.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.withLock(false, func() error {
		return s.walk("", "", func(e Entry) {
			entries = append(entries, e)
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Server != b.Server {
			return a.Server < b.Server
		}
		if a.User != b.User {
			return a.User < b.User
		}
		return a.ModTime.After(b.ModTime)
	})
	return entries, nil
}

// Count returns the number of records in scope. With no arguments the whole
// store is counted; scope[0] restricts to a server and scope[1] to a user.
func (s *Store) Count(scope ...string) (int, error) {
	if len(scope) > 2 {
		return 0, fmt.Errorf("count scope takes at most server and user, got %d values", len(scope))
	}
	var server, user string
	if len(scope) > 0 {
		server = scope[0]
		if err := ValidateName("server", server); err != nil {
			return 0, err
		}
	}
	if len(scope) > 1 {
		user = scope[1]
		if err := ValidateName("user", user); err != nil {
			return 0, err
		}
	}

	n := 0
	err := s.withLock(false, func() error {
		return s.walk(server, user, func(Entry) { n++ })
	})
	return n, err
}

// walk visits every readable record, optionally restricted to a server or a
// server/user pair. Must be called with the lock held.
func (s *Store) walk(server, user string, visit func(Entry)) error {
	servers := []string{server}
	if server == "" {
		children, err := listChildren(s.layout.Base, true)
		if err != nil {
			return err
		}
		servers = names(children)
	}

	for _, srv := range servers {
		users := []string{user}
		if user == "" {
			children, err := listChildren(s.layout.ServerDir(srv), true)
			if err != nil {
				return err
			}
			users = names(children)
		}
		for _, u := range users {
			children, err := listChildren(s.layout.UserDir(srv, u), false)
			if err != nil {
				return err
			}
			for _, c := range children {
				props, mod, err := s.readRecord(srv, u, c.name)
				if err != nil {
					if errors.Is(err, ErrCorruptRecord) {
						s.warnCorrupt(err)
						continue
					}
					if errors.Is(err, ErrNotFound) {
						continue
					}
					return err
				}
				visit(Entry{Server: srv, User: u, ID: c.name, Props: props, ModTime: mod})
			}
		}
	}
	return nil
}

// warnCorrupt logs every corrupt record at debug level and shows a single
// warning per Store.
func (s *Store) warnCorrupt(err error) {
	logger.Debug("skipping corrupt session record", logger.Err(err))
	s.corruptOnce.Do(func() {
		logger.Warn("skipping corrupt session record(s); run with --debug for details", logger.Err(err))
	})
}

// Conflicts describes the mismatches between the cached record and requested
// on the conflict keys (group, port). An empty string means the cached session
// can serve the request.
func (s *Store) Conflicts(server, user, sess string, requested Properties) (string, error) {
	if !requestsConflictKey(requested) {
		return "", nil
	}
	cached, err := s.Get(server, user, sess)
	if err != nil {
		return "", err
	}
	return Conflicts(cached, requested), nil
}

func requestsConflictKey(p Properties) bool {
	for _, k := range ConflictKeys {
		if p[k] != "" {
			return true
		}
	}
	return false
}

// Touch marks the record as just used.
func (s *Store) Touch(server, user, sess string) error {
	if err := validateIdentity(server, user, sess); err != nil {
		return err
	}
	return s.withLock(true, func() error {
		path := s.layout.Record(server, user, sess)
		now := time.Now()
		if err := os.Chtimes(path, now, now); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s/%s/%s", ErrNotFound, server, user, sess)
			}
			return fmt.Errorf("%w: touch %s: %v", ErrStoreWrite, path, err)
		}
		return nil
	})
}

// Clear removes every record and pointer, keeping the base directory.
// It returns the number of records removed.
func (s *Store) Clear() (int, error) {
	n := 0
	err := s.withLock(true, func() error {
		if err := s.walk("", "", func(Entry) { n++ }); err != nil {
			return err
		}
		servers, err := listChildren(s.layout.Base, true)
		if err != nil {
			return err
		}
		for _, srv := range servers {
			if err := os.RemoveAll(s.layout.ServerDir(srv.name)); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreWrite, err)
			}
		}
		return removePointer(s.layout.HostFile())
	})
	return n, err
}

// SetCurrent points the three current pointers at (server, user, sess). The
// record need not exist.
func (s *Store) SetCurrent(server, user, sess string) error {
	if err := validateIdentity(server, user, sess); err != nil {
		return err
	}
	return s.withLock(true, func() error {
		return s.setCurrentLocked(server, user, sess)
	})
}

func (s *Store) setCurrentLocked(server, user, sess string) error {
	if err := writePointer(s.layout.HostFile(), server); err != nil {
		return err
	}
	if err := writePointer(s.layout.UserFile(server), user); err != nil {
		return err
	}
	return writePointer(s.layout.SessFile(server, user), sess)
}

// CurrentHost returns the last used server, or ErrNotFound.
func (s *Store) CurrentHost() (string, error) {
	return s.readPointerLocked(s.layout.HostFile())
}

// CurrentUser returns the last user of server, or ErrNotFound.
func (s *Store) CurrentUser(server string) (string, error) {
	if err := ValidateName("server", server); err != nil {
		return "", err
	}
	return s.readPointerLocked(s.layout.UserFile(server))
}

// CurrentSess returns the last session of (server, user), or ErrNotFound.
func (s *Store) CurrentSess(server, user string) (string, error) {
	if err := validateScope(server, user); err != nil {
		return "", err
	}
	return s.readPointerLocked(s.layout.SessFile(server, user))
}

func (s *Store) readPointerLocked(path string) (string, error) {
	var v string
	err := s.withLock(false, func() error {
		var err error
		v, err = readPointer(path)
		return err
	})
	return v, err
}

// LastHost returns the last used server, or DefaultHost.
func (s *Store) LastHost() string {
	if h, err := s.CurrentHost(); err == nil {
		return h
	}
	return DefaultHost
}

// LastUser returns the last user of server, or the current OS user.
func (s *Store) LastUser(server string) string {
	if u, err := s.CurrentUser(server); err == nil {
		return u
	}
	return OSUser()
}

// LastSess returns the last session of (server, user), or "".
func (s *Store) LastSess(server, user string) string {
	if id, err := s.CurrentSess(server, user); err == nil {
		return id
	}
	return ""
}

// OSUser returns the login name of the current OS user.
func OSUser() string {
	for _, env := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

type child struct {
	name string
	mod  time.Time
}

// listChildren lists the non-hidden entries of dir that are directories (dirs
// true) or regular files (dirs false), most recently modified first. A missing
// directory has no children.
func listChildren(dir string, dirs bool) ([]child, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	out := make([]child, 0, len(entries))
	for _, e := range entries {
		if isHidden(e.Name()) || e.IsDir() != dirs {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if !dirs && !info.Mode().IsRegular() {
			continue
		}
		out = append(out, child{name: e.Name(), mod: info.ModTime()})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].mod.Equal(out[j].mod) {
			return out[i].mod.After(out[j].mod)
		}
		return out[i].name < out[j].name
	})
	return out, nil
}

func names(children []child) []string {
	out := make([]string, len(children))
	for i, c := range children {
		out[i] = c.name
	}
	return out
}

func readPointer(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, filepath.Base(path))
	}
	return v, nil
}

func writePointer(path, value string) error {
	return writeAtomic(path, []byte(value+"\n"))
}

func removePointer(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", ErrStoreWrite, path, err)
	}
	return nil
}

// writeAtomic writes data to a hidden temporary sibling of path and renames
// it into place, creating missing parent directories.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrStoreWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, hiddenPrefix+"tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStoreWrite, tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", ErrStoreWrite, tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrStoreWrite, tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename into %s: %v", ErrStoreWrite, path, err)
	}
	return nil
}
