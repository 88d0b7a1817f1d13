package sessions

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/omectl/internal/logger"
)

// errWouldBlock is returned by tryLock when another process holds the lock.
var errWouldBlock = errors.New("lock would block")

// LockPolicy bounds how long a store operation waits for the lock.
type LockPolicy struct {
	// Attempts is the total number of non-blocking lock attempts.
	Attempts int
	// Interval is the pause between attempts.
	Interval time.Duration
}

// DefaultLockPolicy tries ten times, 100ms apart.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{Attempts: 10, Interval: 100 * time.Millisecond}
}

// fileLock is a held advisory lock on the store lock file.
type fileLock struct {
	f *os.File
}

// acquireLock takes a shared or exclusive lock on path, retrying per policy.
func acquireLock(path string, exclusive bool, policy LockPolicy) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FilePermissions)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file %s: %v", ErrStoreWrite, path, err)
	}

	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	op := func() error {
		err := tryLock(f, exclusive)
		if err == nil || errors.Is(err, errWouldBlock) {
			return err
		}
		return backoff.Permanent(err)
	}
	attempt := 1
	notify := func(_ error, wait time.Duration) {
		logger.Debug("session store locked, retrying", logger.Path(path), logger.Attempt(attempt), "wait", wait)
		attempt++
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Interval), uint64(attempts-1))
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, fmt.Errorf("%w (%s)", ErrLockTimeout, path)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return &fileLock{f: f}, nil
}

// release drops the lock and closes the file. Safe on nil.
func (l *fileLock) release() {
	if l == nil || l.f == nil {
		return
	}
	if err := unlock(l.f); err != nil {
		logger.Debug("failed to unlock session store", logger.Path(l.f.Name()), logger.Err(err))
	}
	_ = l.f.Close()
	l.f = nil
}
