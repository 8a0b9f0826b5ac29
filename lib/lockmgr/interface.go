package lockmgr

import "context"

// Mode selects between a shared (reader) and an exclusive (writer) lock
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// ILockManager defines the interface for a lock provider.
// A key is the path of the lock file.
type ILockManager interface {
	// AcquireLock blocks until the lock for the given key is held in the given mode,
	// the configured timeout expires (RetCBusy) or ctx is cancelled.
	// Returns the owner ID needed to release the lock.
	AcquireLock(ctx context.Context, key string, mode Mode) (ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Returns false if ownerID does not hold a lock on key.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}
