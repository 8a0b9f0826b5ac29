package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/bdbtool/lib/env"
	"github.com/ValentinKolb/bdbtool/lib/lockmgr"
	"github.com/ValentinKolb/bdbtool/lib/store/fstore"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("coord")

// Options configures a strategy
type Options struct {
	// DBPath is the backing file of the database
	DBPath string
	// Env is the environment home, nil if none was given
	Env *env.Env
	// Shards and CompactSlack are passed to fstore.Open
	Shards       int
	CompactSlack int
	// LockTimeout bounds lock waits of the flock strategy. Environment based
	// strategies use the timeout of the environment.
	LockTimeout time.Duration
}

// New creates the strategy of the given kind
func New(kind Kind, opts Options) (Strategy, error) {
	if kind == KindAuto {
		kind = KindNone
		if opts.Env != nil {
			kind = KindTxn
		}
		log.Debugf("auto strategy resolved to %s", kind)
	}

	base := baseStrategy{kind: kind, opts: opts}
	switch kind {
	case KindNone:
		return &base, nil
	case KindFlock:
		return &flockStrategy{
			baseStrategy: base,
			locks:        lockmgr.NewLockManager(opts.LockTimeout),
			lockPath:     opts.DBPath + ".flock",
		}, nil
	case KindCDS, KindTxn:
		if opts.Env == nil {
			return nil, fmt.Errorf("%s: %w", kind, ErrEnvRequired)
		}
		return &envStrategy{
			baseStrategy: base,
			locks:        opts.Env.Locks(),
			lockPath:     opts.Env.LockPath(opts.DBPath),
			txn:          kind == KindTxn,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
	}
}

// --------------------------------------------------------------------------
// None
// --------------------------------------------------------------------------

// baseStrategy opens the store without any coordination
type baseStrategy struct {
	kind Kind
	opts Options
}

func (b *baseStrategy) Kind() Kind {
	return b.kind
}

func (b *baseStrategy) Begin(ctx context.Context, mode Mode) (Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.open(mode, nil, false)
}

// open opens the store for mode and wraps it into a scope. unlock is called when
// the scope is released, and also here if opening fails.
func (b *baseStrategy) open(mode Mode, unlock func() error, txn bool) (Scope, error) {
	s, err := fstore.Open(b.opts.DBPath, fstore.Options{
		Create:       mode == Write,
		ReadOnly:     mode == Read,
		Shards:       b.opts.Shards,
		CompactSlack: b.opts.CompactSlack,
	})
	if err != nil {
		if unlock != nil {
			if uerr := unlock(); uerr != nil {
				log.Errorf("releasing lock after failed open: %v", uerr)
			}
		}
		return nil, err
	}

	sc := &scope{kind: b.kind, mode: mode, store: s, view: s, unlock: unlock}
	if txn {
		t, err := s.Begin()
		if err != nil {
			_ = sc.Abort()
			return nil, err
		}
		sc.txn, sc.view = t, t
	}
	log.Debugf("%s scope (%s) opened on %s", mode, b.kind, b.opts.DBPath)
	return sc, nil
}

// --------------------------------------------------------------------------
// AdvisoryFileLock
// --------------------------------------------------------------------------

// flockStrategy takes an exclusive lock on <db>.flock for writers. Readers
// take no lock.
type flockStrategy struct {
	baseStrategy
	locks    lockmgr.ILockManager
	lockPath string
}

func (f *flockStrategy) Begin(ctx context.Context, mode Mode) (Scope, error) {
	if mode == Read {
		return f.baseStrategy.Begin(ctx, mode)
	}
	unlock, err := acquire(ctx, f.locks, f.lockPath, lockmgr.Exclusive)
	if err != nil {
		return nil, err
	}
	return f.open(mode, unlock, false)
}

// --------------------------------------------------------------------------
// CooperativeLock and Transactional
// --------------------------------------------------------------------------

// envStrategy takes a shared (read) or exclusive (write) lock from the
// environment and, for txn, runs the scope inside a store transaction.
type envStrategy struct {
	baseStrategy
	locks    lockmgr.ILockManager
	lockPath string
	txn      bool
}

func (e *envStrategy) Begin(ctx context.Context, mode Mode) (Scope, error) {
	lockMode := lockmgr.Shared
	if mode == Write {
		lockMode = lockmgr.Exclusive
	}
	unlock, err := acquire(ctx, e.locks, e.lockPath, lockMode)
	if err != nil {
		return nil, err
	}
	return e.open(mode, unlock, e.txn)
}

// acquire takes the lock and returns the function releasing it
func acquire(ctx context.Context, locks lockmgr.ILockManager, path string, mode lockmgr.Mode) (func() error, error) {
	ownerID, err := locks.AcquireLock(ctx, path, mode)
	if err != nil {
		return nil, err
	}
	return func() error {
		ok, err := locks.ReleaseLock(path, ownerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("lock %s was not held", path)
		}
		return nil
	}, nil
}
