// Package coord implements the concurrency strategies of bdb-tool.
//
// A Strategy hands out scopes. A scope bundles everything one logical operation
// needs: the locks of the strategy, the opened store and, for the
// transactional strategy, an open transaction. The caller works on
// Scope.Store() and finishes the scope with Commit on success or Abort on any
// error, typically with a deferred Abort:
//
//	sc, err := strategy.Begin(ctx, coord.Write)
//	if err != nil {
//	    return err
//	}
//	defer sc.Abort() // no-op (ErrScopeReleased) after Commit
//	...
//	return sc.Commit()
//
// Strategies:
//
//   - none: no coordination. The store is opened, used and closed. Unsafe when
//     several writers run at the same time.
//   - flock (AdvisoryFileLock): writers hold an exclusive lock on the sidecar
//     file <db>.flock. Readers take no lock and may observe a store in the
//     middle of a multi-step update.
//   - cds (CooperativeLock): readers hold a shared and writers an exclusive
//     lock on the database's lock file in the environment home.
//   - txn (Transactional): like cds, and all writes of a scope go through one
//     store transaction. Commit makes them durable as one unit, Abort drops them.
//     Read scopes are always aborted.
//   - auto: txn when an environment home is configured, none otherwise.
//
// The store is opened after the locks are taken, so a scope always sees every
// write released before it under cds and txn.
package coord
