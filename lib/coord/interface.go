package coord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/bdbtool/lib/store"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Strategy decides how access to a database is coordinated between processes.
type Strategy interface {
	// Kind returns the strategy kind. For KindAuto this is the resolved kind.
	Kind() Kind
	// Begin opens a scope for one logical operation. It blocks until the locks
	// of the strategy are held, the lock timeout expires (RetCBusy) or ctx ends.
	Begin(ctx context.Context, mode Mode) (Scope, error)
}

// Scope is a lock and/or transaction handle. It must be released exactly once,
// by Commit or Abort; both always release the locks of the scope, even when they
// return an error. A second release returns ErrScopeReleased.
type Scope interface {
	// Store returns the store to work on inside the scope.
	Store() store.IStore
	// Commit makes the writes of the scope durable and releases it.
	// Read scopes are aborted instead.
	Commit() error
	// Abort discards uncommitted writes (Transactional only) and releases the scope.
	Abort() error
	// Info describes the backing store of the scope.
	Info() (store.Info, error)
	// Compact rewrites the backing file. Only valid in write scopes.
	Compact() error
}

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Kind names a concurrency strategy
type Kind string

const (
	KindNone  Kind = "none"  // no coordination, unsafe with concurrent writers
	KindFlock Kind = "flock" // exclusive advisory lock on a sidecar file for writers
	KindCDS   Kind = "cds"   // shared/exclusive lock from the environment for readers/writers
	KindTxn   Kind = "txn"   // environment lock plus a store transaction
	KindAuto  Kind = "auto"  // txn with an environment, none without
)

// Kinds lists all selectable strategies
var Kinds = []Kind{KindNone, KindFlock, KindCDS, KindTxn, KindAuto}

// ParseKind converts a strategy name to a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q (must be one of none, flock, cds, txn, auto)", ErrUnknownStrategy, s)
}

// Mode is the access mode of a scope
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

var (
	// ErrScopeReleased is returned when a scope is committed or aborted twice
	ErrScopeReleased = errors.New("scope already released")
	// ErrUnknownStrategy is returned for an unknown strategy name
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrEnvRequired is returned when cds or txn is selected without an environment
	ErrEnvRequired = errors.New("strategy requires an environment (-e)")
)
