// Package lockmgr coordinates access to shared resources between processes
// with advisory OS file locks (flock(2) on unix, LockFileEx on windows).
//
// A lock is identified by the path of its lock file. The file is created on
// first use and never removed; the lock itself lives in the kernel and is
// dropped when the holding process exits, so a crashed process can never leave
// a stale lock behind.
//
// Core Functionality:
//   - Shared locks for readers, exclusive locks for writers
//   - Blocking acquisition, optionally bounded by a timeout (RetCBusy on expiry)
//     and always interruptible through the context
//   - Safe release operations that verify ownership
//
// Ownership:
//
//	Every successful AcquireLock returns a random owner ID. ReleaseLock only
//	releases the lock if the owner ID belongs to a lock on the same key, so a
//	lock cannot be released twice or by someone who never acquired it.
//
// Thread Safety:
//
//	A lock manager can be shared between goroutines. Each acquisition opens its
//	own file handle, so two acquisitions of an exclusive lock on the same key
//	exclude each other within a process as well as across processes.
//
// Usage Example:
//
//	lm := lockmgr.NewLockManager(5 * time.Second)
//
//	ownerID, err := lm.AcquireLock(ctx, "/var/lib/env/__db.1234.lock", lockmgr.Exclusive)
//	if err != nil {
//	    // Handle error (store.RetCBusy on timeout)
//	}
//	defer lm.ReleaseLock("/var/lib/env/__db.1234.lock", ownerID)
package lockmgr
