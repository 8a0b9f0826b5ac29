package lockmgr

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	key := filepath.Join(t.TempDir(), "test.lock")
	lm := NewLockManager(0)

	owner, err := lm.AcquireLock(context.Background(), key, Exclusive)
	require.NoError(t, err)
	require.Len(t, owner, 16)

	ok, err := lm.ReleaseLock(key, owner)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = lm.ReleaseLock(key, owner)
	require.NoError(t, err)
	require.False(t, ok, "second release must report false")
}

func TestReleaseWrongOwner(t *testing.T) {
	key := filepath.Join(t.TempDir(), "test.lock")
	lm := NewLockManager(0)

	owner, err := lm.AcquireLock(context.Background(), key, Shared)
	require.NoError(t, err)
	defer lm.ReleaseLock(key, owner)

	ok, err := lm.ReleaseLock(key, generateOwnerID())
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = lm.ReleaseLock(key+".other", owner)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExclusiveTimesOut(t *testing.T) {
	key := filepath.Join(t.TempDir(), "test.lock")
	lm := NewLockManager(100 * time.Millisecond)

	owner, err := lm.AcquireLock(context.Background(), key, Exclusive)
	require.NoError(t, err)

	_, err = lm.AcquireLock(context.Background(), key, Exclusive)
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrBusy), "expected busy, got %v", err)

	_, err = lm.AcquireLock(context.Background(), key, Shared)
	require.True(t, errors.Is(err, store.ErrBusy), "readers must wait for a writer, got %v", err)

	_, err = lm.ReleaseLock(key, owner)
	require.NoError(t, err)

	owner, err = lm.AcquireLock(context.Background(), key, Exclusive)
	require.NoError(t, err)
	_, _ = lm.ReleaseLock(key, owner)
}

func TestSharedLocksCoexist(t *testing.T) {
	key := filepath.Join(t.TempDir(), "test.lock")
	lm := NewLockManager(100 * time.Millisecond)

	a, err := lm.AcquireLock(context.Background(), key, Shared)
	require.NoError(t, err)
	b, err := lm.AcquireLock(context.Background(), key, Shared)
	require.NoError(t, err)

	_, err = lm.AcquireLock(context.Background(), key, Exclusive)
	require.True(t, errors.Is(err, store.ErrBusy))

	_, _ = lm.ReleaseLock(key, a)
	_, _ = lm.ReleaseLock(key, b)
}

func TestWaitEndsWithContext(t *testing.T) {
	key := filepath.Join(t.TempDir(), "test.lock")
	lm := NewLockManager(0)

	owner, err := lm.AcquireLock(context.Background(), key, Exclusive)
	require.NoError(t, err)
	defer lm.ReleaseLock(key, owner)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = lm.AcquireLock(ctx, key, Exclusive)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, store.ErrBusy))
}

func TestWaiterGetsLockAfterRelease(t *testing.T) {
	key := filepath.Join(t.TempDir(), "test.lock")
	lm := NewLockManager(0)

	owner, err := lm.AcquireLock(context.Background(), key, Exclusive)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		o, err := lm.AcquireLock(context.Background(), key, Exclusive)
		if err == nil {
			_, err = lm.ReleaseLock(key, o)
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("waiter acquired a lock that is still held")
	default:
	}

	_, err = lm.ReleaseLock(key, owner)
	require.NoError(t, err)
	require.NoError(t, <-done)
}
