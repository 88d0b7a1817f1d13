package sessions

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Base: filepath.Join(t.TempDir(), "sessions"),
		Lock: LockPolicy{Attempts: 3, Interval: 10 * time.Millisecond},
	})
	require.NoError(t, err)
	return store
}

// age sets the mtime of a record so ordering does not depend on clock resolution.
func age(t *testing.T, s *Store, server, user, sess string, ago time.Duration) {
	t.Helper()
	ts := time.Now().Add(-ago)
	require.NoError(t, os.Chtimes(s.layout.Record(server, user, sess), ts, ts))
}

// assertPointersValid checks that every current pointer names an existing record.
func assertPointersValid(t *testing.T, s *Store) {
	t.Helper()

	host, err := s.CurrentHost()
	if err != nil {
		assert.ErrorIs(t, err, ErrNotFound)
		return
	}
	user, err := s.CurrentUser(host)
	require.NoError(t, err, "host pointer %q has no user pointer", host)
	sess, err := s.CurrentSess(host, user)
	require.NoError(t, err, "user pointer %q has no session pointer", user)
	_, err = s.Get(host, user, sess)
	assert.NoError(t, err, "pointers name missing record %s/%s/%s", host, user, sess)
}

func TestNewStoreCreatesBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "a", "b")
	store, err := NewStore(Config{Base: base})
	require.NoError(t, err)
	assert.Equal(t, base, store.Base())

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(DirPermissions), info.Mode().Perm())
}

func TestAddAndGet(t *testing.T) {
	store := newTestStore(t)

	props := Properties{"group": "g1", "port": "4064", "extra": "x"}
	require.NoError(t, store.Add("host1", "alice", "S1", props))

	got, err := store.Get("host1", "alice", "S1")
	require.NoError(t, err)
	assert.Equal(t, Properties{
		"host": "host1", "user": "alice", "sess": "S1",
		"group": "g1", "port": "4064", "extra": "x",
	}, got)

	// The caller's map is not modified.
	assert.Equal(t, Properties{"group": "g1", "port": "4064", "extra": "x"}, props)

	n, err := store.Count("host1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, "host1", store.LastHost())
	assert.Equal(t, "alice", store.LastUser("host1"))
	assert.Equal(t, "S1", store.LastSess("host1", "alice"))
}

func TestAddFilePermissions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host1", "alice", "S1", nil))

	info, err := os.Stat(store.layout.Record("host1", "alice", "S1"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermissions), info.Mode().Perm())

	info, err = os.Stat(store.layout.UserDir("host1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DirPermissions), info.Mode().Perm())
}

func TestAddDuplicate(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host1", "alice", "S1", nil))

	err := store.Add("host1", "alice", "S1", Properties{"group": "other"})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := store.Get("host1", "alice", "S1")
	require.NoError(t, err)
	assert.NotContains(t, got, "group")
}

func TestAddRejectsInvalidNames(t *testing.T) {
	store := newTestStore(t)

	assert.ErrorIs(t, store.Add("", "alice", "S1", nil), ErrInvalidName)
	assert.ErrorIs(t, store.Add("host1", "a/b", "S1", nil), ErrInvalidName)
	assert.ErrorIs(t, store.Add("host1", "alice", "._LASTSESS_", nil), ErrInvalidName)
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get("host1", "alice", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetCorruptRecord(t *testing.T) {
	store := newTestStore(t)

	t.Run("missing equals", func(t *testing.T) {
		path := store.layout.Record("host1", "alice", "bad")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), DirPermissions))
		require.NoError(t, os.WriteFile(path, []byte("host=host1\nnonsense\n"), FilePermissions))

		_, err := store.Get("host1", "alice", "bad")
		assert.ErrorIs(t, err, ErrCorruptRecord)
	})

	t.Run("missing identity keys", func(t *testing.T) {
		path := store.layout.Record("host1", "alice", "legacy")
		require.NoError(t, os.WriteFile(path, []byte("group=g1\n"), FilePermissions))

		_, err := store.Get("host1", "alice", "legacy")
		assert.ErrorIs(t, err, ErrCorruptRecord)

		// Corrupt records are reported, never silently deleted.
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr)
	})

	t.Run("contents skips corrupt", func(t *testing.T) {
		require.NoError(t, store.Add("host1", "alice", "good", nil))
		contents, err := store.Contents()
		require.NoError(t, err)
		assert.Len(t, contents["host1"]["alice"], 1)
		assert.Contains(t, contents["host1"]["alice"], "good")
	})
}

func TestAvailableOrdering(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.Add("host1", "alice", id, nil))
	}
	age(t, store, "host1", "alice", "old", 3*time.Hour)
	age(t, store, "host1", "alice", "mid", 2*time.Hour)
	age(t, store, "host1", "alice", "new", 1*time.Hour)

	ids, err := store.Available("host1", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, ids)

	// Touch moves a record to the front.
	require.NoError(t, store.Touch("host1", "alice", "old"))
	ids, err = store.Available("host1", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new", "mid"}, ids)

	// Hidden pointer files are never listed.
	assert.NotContains(t, ids, SessFileName)
}

func TestAvailableEmpty(t *testing.T) {
	store := newTestStore(t)
	ids, err := store.Available("nowhere", "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTouchMissing(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Touch("host1", "alice", "S1"), ErrNotFound)
}

func TestCount(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host1", "alice", "S1", nil))
	require.NoError(t, store.Add("host1", "alice", "S2", nil))
	require.NoError(t, store.Add("host1", "bob", "S3", nil))
	require.NoError(t, store.Add("host2", "alice", "S4", nil))

	tests := []struct {
		scope []string
		want  int
	}{
		{nil, 4},
		{[]string{"host1"}, 3},
		{[]string{"host1", "alice"}, 2},
		{[]string{"host2", "alice"}, 1},
		{[]string{"host3"}, 0},
	}
	for _, tt := range tests {
		n, err := store.Count(tt.scope...)
		require.NoError(t, err)
		assert.Equal(t, tt.want, n, "scope %v", tt.scope)
	}

	_, err := store.Count("a", "b", "c")
	assert.Error(t, err)
}

func TestContents(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host1", "alice", "S1", Properties{"group": "g1"}))
	require.NoError(t, store.Add("host2", "bob", "S2", nil))

	contents, err := store.Contents()
	require.NoError(t, err)

	assert.Equal(t, "g1", contents["host1"]["alice"]["S1"]["group"])
	assert.Equal(t, "S2", contents["host2"]["bob"]["S2"]["sess"])
	assert.Len(t, contents, 2)
}

func TestList(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host2", "bob", "B1", nil))
	require.NoError(t, store.Add("host1", "alice", "A1", nil))
	require.NoError(t, store.Add("host1", "alice", "A2", nil))
	age(t, store, "host1", "alice", "A1", time.Hour)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "A2", entries[0].ID)
	assert.Equal(t, "A1", entries[1].ID)
	assert.Equal(t, "B1", entries[2].ID)
	assert.False(t, entries[0].ModTime.IsZero())
}

func TestStoreConflicts(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host1", "alice", "S1", Properties{"group": "g1", "port": "4444"}))

	tests := []struct {
		name      string
		requested Properties
		conflict  bool
	}{
		{"empty request", Properties{}, false},
		{"matching group", Properties{"group": "g1"}, false},
		{"different group", Properties{"group": "g2"}, true},
		{"matching port", Properties{"port": "4444"}, false},
		{"different port", Properties{"port": "5555"}, true},
		{"passthrough key", Properties{"agent": "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := store.Conflicts("host1", "alice", "S1", tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.conflict, c != "", "conflict description %q", c)
		})
	}

	t.Run("empty request never conflicts even without record", func(t *testing.T) {
		c, err := store.Conflicts("host9", "nobody", "none", Properties{})
		require.NoError(t, err)
		assert.Empty(t, c)
	})
}

func TestLastDefaults(t *testing.T) {
	store := newTestStore(t)
	t.Setenv("USER", "osuser")

	assert.Equal(t, DefaultHost, store.LastHost())
	assert.Equal(t, "osuser", store.LastUser("host1"))
	assert.Equal(t, "", store.LastSess("host1", "osuser"))

	_, err := store.CurrentHost()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetCurrentWithoutRecord(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetCurrent("host1", "alice", "pending"))

	assert.Equal(t, "host1", store.LastHost())
	assert.Equal(t, "alice", store.LastUser("host1"))
	assert.Equal(t, "pending", store.LastSess("host1", "alice"))
}

func TestRemoveFallsBackToNewestSibling(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host1", "alice", "S1", nil))
	require.NoError(t, store.Add("host1", "alice", "S2", nil))
	require.NoError(t, store.Add("host1", "alice", "S3", nil))
	age(t, store, "host1", "alice", "S1", 2*time.Hour)
	age(t, store, "host1", "alice", "S2", 1*time.Hour)
	age(t, store, "host1", "alice", "S3", 3*time.Hour)
	require.NoError(t, store.SetCurrent("host1", "alice", "S3"))

	require.NoError(t, store.Remove("host1", "alice", "S3"))
	assert.Equal(t, "S2", store.LastSess("host1", "alice"))
	assertPointersValid(t, store)

	// Removing a non-current session leaves the pointer alone.
	require.NoError(t, store.Remove("host1", "alice", "S1"))
	assert.Equal(t, "S2", store.LastSess("host1", "alice"))
	assertPointersValid(t, store)
}

func TestRemoveFallsBackAcrossUsersAndServers(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host2", "carol", "C1", nil))
	require.NoError(t, store.Add("host1", "bob", "B1", nil))
	require.NoError(t, store.Add("host1", "alice", "A1", nil))
	age(t, store, "host2", "carol", "C1", 3*time.Hour)
	age(t, store, "host1", "bob", "B1", 2*time.Hour)

	// alice was added last: all pointers name her session.
	require.NoError(t, store.Remove("host1", "alice", "A1"))
	assert.Equal(t, "host1", store.LastHost())
	assert.Equal(t, "bob", store.LastUser("host1"))
	assertPointersValid(t, store)

	_, err := os.Stat(store.layout.UserDir("host1", "alice"))
	assert.True(t, os.IsNotExist(err), "empty user directory is removed")

	require.NoError(t, store.Remove("host1", "bob", "B1"))
	assert.Equal(t, "host2", store.LastHost())
	assertPointersValid(t, store)

	require.NoError(t, store.Remove("host2", "carol", "C1"))
	_, err = store.CurrentHost()
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveNotFound(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Remove("host1", "alice", "S1"), ErrNotFound)
}

func TestPointersValidAfterMutations(t *testing.T) {
	store := newTestStore(t)

	steps := []struct {
		add    bool
		server string
		user   string
		sess   string
	}{
		{true, "h1", "u1", "s1"},
		{true, "h1", "u1", "s2"},
		{true, "h2", "u2", "s3"},
		{false, "h2", "u2", "s3"},
		{true, "h1", "u3", "s4"},
		{false, "h1", "u1", "s2"},
		{false, "h1", "u3", "s4"},
		{false, "h1", "u1", "s1"},
	}

	for i, step := range steps {
		if step.add {
			require.NoError(t, store.Add(step.server, step.user, step.sess, nil), "step %d", i)
		} else {
			require.NoError(t, store.Remove(step.server, step.user, step.sess), "step %d", i)
		}
		assertPointersValid(t, store)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host1", "alice", "S1", nil))
	require.NoError(t, store.Add("host2", "bob", "S2", nil))

	n, err := store.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.CurrentHost()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(store.Base())
	assert.NoError(t, err, "base directory is kept")
}

func TestCreateRunsLoginUnderLock(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create("host1", "alice", Properties{"group": "g1"}, func() (string, error) {
		// Another process cannot take the lock while authentication runs.
		other, err := NewStore(Config{Base: store.Base(), Lock: LockPolicy{Attempts: 1, Interval: time.Millisecond}})
		require.NoError(t, err)
		_, lockErr := other.Available("host1", "alice")
		assert.ErrorIs(t, lockErr, ErrLockTimeout)
		return "S9", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "S9", sess)

	got, err := store.Get("host1", "alice", "S9")
	require.NoError(t, err)
	assert.Equal(t, "g1", got["group"])
}

func TestCreateRejectsUnusableSessionID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("host1", "alice", nil, func() (string, error) {
		return "../escape", nil
	})
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLockTimeout(t *testing.T) {
	store := newTestStore(t)

	held, err := acquireLock(store.layout.LockFile(), true, DefaultLockPolicy())
	require.NoError(t, err)

	start := time.Now()
	err = store.Add("host1", "alice", "S1", nil)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	held.release()
	assert.NoError(t, store.Add("host1", "alice", "S1", nil))
}

func TestSharedLocksCoexist(t *testing.T) {
	store := newTestStore(t)

	reader, err := acquireLock(store.layout.LockFile(), false, DefaultLockPolicy())
	require.NoError(t, err)
	defer reader.release()

	_, err = store.Available("host1", "alice")
	assert.NoError(t, err)

	assert.ErrorIs(t, store.Add("host1", "alice", "S1", nil), ErrLockTimeout)
}

func TestConcurrentAddSameIdentity(t *testing.T) {
	base := filepath.Join(t.TempDir(), "sessions")
	policy := LockPolicy{Attempts: 50, Interval: 5 * time.Millisecond}

	const workers = 8
	results := make([]error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			// Separate stores open separate lock file descriptions, as two
			// processes would.
			store, err := NewStore(Config{Base: base, Lock: policy})
			if err != nil {
				results[i] = err
				return
			}
			results[i] = store.Add("host1", "alice", "Sx", Properties{"worker": string(rune('a' + i))})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, isDuplicateOrTimeout(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)

	store, err := NewStore(Config{Base: base})
	require.NoError(t, err)
	assertPointersValid(t, store)
}

func isDuplicateOrTimeout(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrLockTimeout)
}

func TestNoTemporaryFilesLeft(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Add("host1", "alice", "S1", nil))
	require.NoError(t, store.Touch("host1", "alice", "S1"))
	require.NoError(t, store.SetCurrent("host1", "alice", "S1"))

	err := filepath.Walk(store.Base(), func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		assert.NotContains(t, filepath.Base(path), "tmp-", "leftover temporary file %s", path)
		return nil
	})
	require.NoError(t, err)
}

func TestLookup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add("host1", "alice", "S1", Properties{KeyGroup: "g1"}))
	ts := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(s.Layout().Record("host1", "alice", "S1"), ts, ts))

	e, err := s.Lookup("host1", "alice", "S1")
	require.NoError(t, err)
	assert.Equal(t, "S1", e.ID)
	assert.Equal(t, "g1", e.Props[KeyGroup])
	assert.True(t, ts.Equal(e.ModTime))

	_, err = s.Lookup("host1", "alice", "S2")
	assert.ErrorIs(t, err, ErrNotFound)
}
