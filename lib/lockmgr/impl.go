package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/bdbtool/lib/metrics"
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/gofrs/flock"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("lockmgr")

// retryDelay is the polling interval while waiting for a lock held by someone else
const retryDelay = 20 * time.Millisecond

type held struct {
	key  string
	mode Mode
	fl   *flock.Flock
}

type lockMgrImpl struct {
	timeout time.Duration
	held    *xsync.MapOf[string, held]
}

// NewLockManager creates a lock manager backed by OS file locks.
// A timeout of 0 waits until the lock becomes available.
func NewLockManager(timeout time.Duration) ILockManager {
	return &lockMgrImpl{
		timeout: timeout,
		held:    xsync.NewMapOf[string, held](),
	}
}

func (lm *lockMgrImpl) AcquireLock(ctx context.Context, key string, mode Mode) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s lock on %s: %w", mode, key, err)
	}
	ownerID := generateOwnerID()

	waitCtx := ctx
	if lm.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, lm.timeout)
		defer cancel()
	}

	fl := flock.New(key)
	start := time.Now()

	var (
		ok  bool
		err error
	)
	if mode == Exclusive {
		ok, err = fl.TryLockContext(waitCtx, retryDelay)
	} else {
		ok, err = fl.TryRLockContext(waitCtx, retryDelay)
	}
	waited := time.Since(start)
	metrics.LockWait(mode.String(), waited)

	if err != nil || !ok {
		_ = fl.Close()
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("waiting for %s lock on %s: %w", mode, key, ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return nil, store.NewError(store.RetCBusy, fmt.Sprintf("%s lock on %s not acquired within %s", mode, key, lm.timeout))
		case err != nil:
			return nil, store.WrapError(store.RetCStorage, fmt.Sprintf("cannot lock %s", key), err)
		default:
			return nil, store.NewError(store.RetCBusy, fmt.Sprintf("%s lock on %s not acquired", mode, key))
		}
	}

	lm.held.Store(string(ownerID), held{key: key, mode: mode, fl: fl})
	log.Debugf("acquired %s lock on %s after %s", mode, key, waited)
	return ownerID, nil
}

func (lm *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	// Check if the lock is owned by the caller
	h, ok := lm.held.Load(string(ownerID))
	if !ok || h.key != key {
		return false, nil
	}
	lm.held.Delete(string(ownerID))

	// Release the lock
	if err := h.fl.Unlock(); err != nil {
		_ = h.fl.Close()
		return false, store.WrapError(store.RetCStorage, fmt.Sprintf("cannot unlock %s", key), err)
	}
	if err := h.fl.Close(); err != nil {
		return true, store.WrapError(store.RetCStorage, fmt.Sprintf("cannot close lock file %s", key), err)
	}
	log.Debugf("released %s lock on %s", h.mode, key)
	return true, nil
}
