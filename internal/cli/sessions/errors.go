package sessions

import "errors"

var (
	// ErrNotFound indicates the requested session record or pointer doesn't exist.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicate indicates a record with the same identity already exists.
	ErrDuplicate = errors.New("session already exists")
	// ErrCorruptRecord indicates a record file that cannot be parsed or whose
	// identity keys don't match its location.
	ErrCorruptRecord = errors.New("corrupt session record")
	// ErrLockTimeout indicates the store lock could not be acquired in time.
	ErrLockTimeout = errors.New("session store is locked by another process - retry shortly")
	// ErrStoreWrite indicates a failed write to the store directory.
	ErrStoreWrite = errors.New("failed to write session store")
	// ErrInvalidName indicates a server, user or session id that cannot be
	// used as a path component.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidProperty indicates a property key or value that cannot be
	// serialized in the record format.
	ErrInvalidProperty = errors.New("invalid session property")
)
