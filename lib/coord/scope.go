package coord

import (
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/ValentinKolb/bdbtool/lib/store/fstore"
)

// scope is the Scope of all strategies. view is the store handed out: the
// store itself or the open transaction.
type scope struct {
	kind     Kind
	mode     Mode
	store    *fstore.Store
	txn      *fstore.Txn
	view     store.IStore
	unlock   func() error
	released bool
}

func (s *scope) Store() store.IStore {
	return s.view
}

func (s *scope) Info() (store.Info, error) {
	return s.store.Info()
}

// Compact rewrites the backing file. An open transaction must not have writes
// yet; it is finished first since compaction is not transactional.
func (s *scope) Compact() error {
	if s.released {
		return ErrScopeReleased
	}
	if s.mode != Write {
		return store.NewError(store.RetCReadOnly, "compaction needs a write scope")
	}
	if s.txn != nil {
		if s.txn.Pending() > 0 {
			return store.NewError(store.RetCTxnActive, "cannot compact with uncommitted writes")
		}
		if err := s.txn.Rollback(); err != nil {
			return err
		}
		s.txn, s.view = nil, s.store
	}
	return s.store.Compact()
}

func (s *scope) Commit() error {
	if s.released {
		return ErrScopeReleased
	}
	if s.mode == Read {
		return s.release(false)
	}
	return s.release(true)
}

func (s *scope) Abort() error {
	if s.released {
		return ErrScopeReleased
	}
	return s.release(false)
}

// release finishes the transaction, closes the store and unlocks, in this order.
// All steps run even if an earlier one fails; the first error is returned.
func (s *scope) release(commit bool) error {
	s.released = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.txn != nil {
		if commit {
			keep(s.txn.Commit())
		} else {
			keep(s.txn.Rollback())
		}
	}
	keep(s.store.Close())
	if s.unlock != nil {
		keep(s.unlock())
	}

	if firstErr != nil {
		log.Warningf("%s scope (%s) released with error: %v", s.mode, s.kind, firstErr)
	} else {
		log.Debugf("%s scope (%s) released (commit=%v)", s.mode, s.kind, commit)
	}
	return firstErr
}
