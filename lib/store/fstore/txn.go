package fstore

import (
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/ValentinKolb/bdbtool/lib/metrics"
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/google/uuid"
)

// Txn is a transaction on a Store. Writes are buffered in an overlay and
// become durable only with Commit, which appends them as one framed batch.
// Reads see the transaction's own writes. Txn implements store.IStore.
type Txn struct {
	mu     sync.Mutex
	s      *Store
	id     string
	writes map[string]pending
	done   bool
}

// pending is a buffered write; deleted marks a tombstone
type pending struct {
	value   []byte
	deleted bool
}

var _ store.IStore = (*Txn)(nil)

// Begin starts a transaction. Only one transaction can be open per store;
// a second Begin returns RetCTxnActive.
func (s *Store) Begin() (*Txn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.txn != nil {
		return nil, store.NewError(store.RetCTxnActive, "a transaction is already open on this store")
	}

	t := &Txn{
		s:      s,
		id:     uuid.NewString(),
		writes: make(map[string]pending),
	}
	s.txn = t
	log.Debugf("txn %s started on %s", t.id, s.path)
	return t, nil
}

// ID returns the transaction id written to the begin and commit records
func (t *Txn) ID() string {
	return t.id
}

// Pending returns the number of buffered writes
func (t *Txn) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// check returns an error if the transaction or its store is finished.
//
// Thread-safety: callers must hold t.mu
func (t *Txn) check() error {
	if t.done {
		return store.NewError(store.RetCTxnDone, "transaction is already finished")
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.checkOpen()
}

// lookup returns the value of key as seen by the transaction.
//
// Thread-safety: callers must hold t.mu
func (t *Txn) lookup(key string) ([]byte, bool) {
	if p, ok := t.writes[key]; ok {
		if p.deleted {
			return nil, false
		}
		return p.value, true
	}
	return t.s.db.Get(key)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (t *Txn) Set(key string, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return err
	}
	if t.s.opts.ReadOnly {
		return store.NewError(store.RetCReadOnly, "transaction on a read-only store")
	}
	if err := checkSize(key, value); err != nil {
		return err
	}
	t.writes[key] = pending{value: slices.Clone(value)}
	return nil
}

func (t *Txn) Delete(key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return false, err
	}
	if t.s.opts.ReadOnly {
		return false, store.NewError(store.RetCReadOnly, "transaction on a read-only store")
	}
	if _, ok := t.lookup(key); !ok {
		return false, nil
	}
	t.writes[key] = pending{deleted: true}
	return true, nil
}

func (t *Txn) Get(key string) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return nil, false, err
	}
	val, ok := t.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(val), true, nil
}

func (t *Txn) Has(key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return false, err
	}
	_, ok := t.lookup(key)
	return ok, nil
}

func (t *Txn) Items() (iter.Seq2[string, []byte], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return nil, err
	}

	type pair struct {
		key   string
		value []byte
	}
	snapshot := make([]pair, 0, t.s.db.Len()+len(t.writes))
	for k, v := range t.s.db.Items() {
		if _, overlaid := t.writes[k]; overlaid {
			continue
		}
		snapshot = append(snapshot, pair{k, v})
	}
	for k, p := range t.writes {
		if !p.deleted {
			snapshot = append(snapshot, pair{k, slices.Clone(p.value)})
		}
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].key < snapshot[j].key })

	return func(yield func(string, []byte) bool) {
		for _, p := range snapshot {
			if !yield(p.key, p.value) {
				return
			}
		}
	}, nil
}

func (t *Txn) Count() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(); err != nil {
		return 0, err
	}

	n := t.s.db.Len()
	for k, p := range t.writes {
		inBase := t.s.db.Has(k)
		switch {
		case p.deleted && inBase:
			n--
		case !p.deleted && !inBase:
			n++
		}
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Commit / Rollback
// --------------------------------------------------------------------------

// Commit makes the buffered writes durable with one framed batch
// (begin, writes in key order, commit) written and synced at once, then applies
// them to the store. The transaction is finished even if Commit fails.
func (t *Txn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.NewError(store.RetCTxnDone, "transaction is already finished")
	}
	t.done = true

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == t {
		s.txn = nil
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(t.writes) == 0 {
		log.Debugf("txn %s committed without writes", t.id)
		return nil
	}

	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	recs := make([]record, 0, len(keys)+2)
	recs = append(recs, record{typ: recBegin, key: t.id})
	for _, k := range keys {
		p := t.writes[k]
		if p.deleted {
			recs = append(recs, record{typ: recDelete, key: k})
		} else {
			recs = append(recs, record{typ: recPut, key: k, value: p.value})
		}
	}
	recs = append(recs, record{typ: recCommit, key: t.id})

	if err := s.appendRecords(recs...); err != nil {
		return err
	}
	for _, rec := range recs[1 : len(recs)-1] {
		_ = apply(s.db, rec)
	}
	s.records += len(keys)
	metrics.StoreOp("commit")
	log.Debugf("txn %s committed %d writes to %s", t.id, len(keys), s.path)
	return nil
}

// Rollback discards the buffered writes
func (t *Txn) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return store.NewError(store.RetCTxnDone, "transaction is already finished")
	}
	t.done = true

	t.s.mu.Lock()
	if t.s.txn == t {
		t.s.txn = nil
	}
	t.s.mu.Unlock()

	metrics.StoreOp("rollback")
	log.Debugf("txn %s rolled back (%d writes discarded)", t.id, len(t.writes))
	return nil
}
