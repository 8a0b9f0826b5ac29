package fstore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/ValentinKolb/bdbtool/lib/db"
	"github.com/ValentinKolb/bdbtool/lib/db/engines/hashdb"
	"github.com/ValentinKolb/bdbtool/lib/metrics"
	"github.com/ValentinKolb/bdbtool/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// openFile opens the backing file, replaced in tests
var openFile = os.OpenFile

// maxFieldSize bounds keys and values so every record can be replayed by the engine
var maxFieldSize = db.MaxFieldSize

// DefaultCompactSlack is the number of dead records tolerated before a
// writable store compacts itself on Close.
const DefaultCompactSlack = 1000

// Options configures how a store file is opened
type Options struct {
	// Create creates the file when it does not exist. Ignored for read-only stores.
	Create bool
	// ReadOnly opens the file without write access. Mutations fail with RetCReadOnly.
	ReadOnly bool
	// Factory creates the engine holding the records. Defaults to a hashdb engine
	// with Shards shards.
	Factory store.DBFactory
	// Shards is the shard count of the default engine, 0 picks the engine default.
	Shards int
	// CompactSlack is the number of dead records tolerated before Close compacts
	// the file. 0 uses DefaultCompactSlack, a negative value disables compaction on Close.
	CompactSlack int
}

// Store is a file-backed store.IStore. All records live in memory in a db.KVDB
// engine; the backing file is an append-only log of the mutations.
type Store struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	db        db.KVDB
	opts      Options
	size      int64 // bytes of valid log
	records   int   // data records in the log
	truncated int64 // bytes dropped from a torn tail on open
	txn       *Txn
	closed    bool
	failed    error // set when the file handle no longer matches the log, refuses further writes
}

var _ store.IStore = (*Store)(nil)

// --------------------------------------------------------------------------
// Open
// --------------------------------------------------------------------------

// Open opens the store backed by the file at path and replays its log.
// Errors are of type *store.Error: RetCStorage when the file cannot be opened or
// read, RetCCorrupt when it is not a store file.
func Open(path string, opts Options) (*Store, error) {
	if opts.CompactSlack == 0 {
		opts.CompactSlack = DefaultCompactSlack
	}
	if opts.Factory == nil {
		shards := opts.Shards
		opts.Factory = func() db.KVDB {
			o := hashdb.DefaultOptions()
			if shards > 0 {
				o.NumShards = shards
			}
			return hashdb.NewHashDB(o)
		}
	}

	flag := os.O_RDWR | os.O_APPEND
	if opts.ReadOnly {
		flag = os.O_RDONLY
	} else if opts.Create {
		flag |= os.O_CREATE
	}

	f, err := openFile(path, flag, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.WrapError(store.RetCStorage, fmt.Sprintf("database '%s' does not exist", path), err)
		}
		return nil, store.WrapError(store.RetCStorage, fmt.Sprintf("cannot open database '%s'", path), err)
	}

	s := &Store{
		path: path,
		file: f,
		db:   opts.Factory(),
		opts: opts,
	}
	if err := s.load(); err != nil {
		_ = f.Close()
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

// load reads the header and replays the log, truncating a torn tail when the
// file is writable.
func (s *Store) load() error {
	st, err := s.file.Stat()
	if err != nil {
		return store.WrapError(store.RetCStorage, "cannot stat database", err)
	}
	fileSize := st.Size()

	r := bufio.NewReaderSize(s.file, 64*1024)
	if err := readHeader(r); err != nil {
		if errors.Is(err, errNotStore) {
			return store.WrapError(store.RetCCorrupt, fmt.Sprintf("cannot read database '%s'", s.path), err)
		}
		if !errors.Is(err, errTorn) {
			return store.WrapError(store.RetCStorage, fmt.Sprintf("cannot read database '%s'", s.path), err)
		}
		// new or torn header: the store is empty
		if s.opts.ReadOnly {
			log.Debugf("database %s has no header yet, opening it empty", s.path)
			return nil
		}
		return s.writeHeader(fileSize)
	}

	res, err := replay(r, fileSize, s.db)
	if errors.Is(err, errCorruptRecord) {
		return store.WrapError(store.RetCCorrupt, fmt.Sprintf("database '%s' is corrupt", s.path), err)
	}
	if err != nil {
		return store.WrapError(store.RetCStorage, fmt.Sprintf("cannot read database '%s'", s.path), err)
	}
	s.size = res.good
	s.records = res.records
	metrics.RecordsReplayed(res.records)

	if res.stopped != nil {
		s.truncated = fileSize - res.good
		log.Warningf("database %s: %v, ignoring the last %d bytes", s.path, res.stopped, s.truncated)
		if !s.opts.ReadOnly {
			if err := s.truncate(res.good); err != nil {
				return err
			}
		}
	}
	log.Debugf("opened %s: %d records, %d live, %d bytes", s.path, s.records, s.db.Len(), s.size)
	return nil
}

// writeHeader (re)initializes an empty or torn file
func (s *Store) writeHeader(fileSize int64) error {
	if fileSize > 0 {
		if err := s.file.Truncate(0); err != nil {
			return store.WrapError(store.RetCStorage, "cannot reset database header", err)
		}
	}
	if _, err := s.file.Write(appendHeader(nil)); err != nil {
		return store.WrapError(store.RetCStorage, "cannot write database header", err)
	}
	if err := s.file.Sync(); err != nil {
		return store.WrapError(store.RetCStorage, "cannot sync database", err)
	}
	s.size = headerSize
	return nil
}

func (s *Store) truncate(size int64) error {
	if err := s.file.Truncate(size); err != nil {
		return store.WrapError(store.RetCStorage, "cannot truncate torn tail", err)
	}
	if err := s.file.Sync(); err != nil {
		return store.WrapError(store.RetCStorage, "cannot sync database", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// checkOpen returns an error if the store is closed.
//
// Thread-safety: callers must hold s.mu
func (s *Store) checkOpen() error {
	if s.closed {
		return store.NewError(store.RetCClosed, "store is closed")
	}
	return nil
}

// checkWritable returns an error if the store cannot take direct writes.
//
// Thread-safety: callers must hold s.mu
func (s *Store) checkWritable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return store.NewError(store.RetCReadOnly, fmt.Sprintf("database '%s' is opened read-only", s.path))
	}
	if s.txn != nil {
		return store.NewError(store.RetCTxnActive, "a transaction is open on this store")
	}
	if s.failed != nil {
		return s.failed
	}
	return nil
}

// checkSize rejects keys and values the engine could not load again
func checkSize(key string, value []byte) error {
	if len(key) > maxFieldSize || len(value) > maxFieldSize {
		return store.NewError(store.RetCStorage, fmt.Sprintf("record too large (key %d bytes, value %d bytes, limit %d)", len(key), len(value), maxFieldSize))
	}
	return nil
}

// appendRecords writes the records with a single write and syncs the file.
// On failure the file is cut back to its previous size. If that fails too the
// store refuses all further writes.
//
// Thread-safety: callers must hold s.mu
func (s *Store) appendRecords(recs ...record) error {
	if s.failed != nil {
		return s.failed
	}

	var (
		buf []byte
		err error
	)
	for _, rec := range recs {
		if buf, err = appendRecord(buf, rec); err != nil {
			return store.WrapError(store.RetCStorage, "cannot encode record", err)
		}
	}

	if _, err := s.file.Write(buf); err != nil {
		if terr := s.file.Truncate(s.size); terr != nil {
			log.Errorf("cannot roll back partial write on %s: %v", s.path, terr)
			s.failed = store.WrapError(store.RetCStorage, "database has a partial write", terr)
		}
		return store.WrapError(store.RetCStorage, "cannot write record", err)
	}
	if err := s.file.Sync(); err != nil {
		return store.WrapError(store.RetCStorage, "cannot sync database", err)
	}
	s.size += int64(len(buf))
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := checkSize(key, value); err != nil {
		return err
	}

	if err := s.appendRecords(record{typ: recPut, key: key, value: value}); err != nil {
		return err
	}
	s.db.Set(key, value)
	s.records++
	metrics.StoreOp("set")
	return nil
}

func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(); err != nil {
		return false, err
	}

	if !s.db.Has(key) {
		return false, nil
	}
	if err := s.appendRecords(record{typ: recDelete, key: key}); err != nil {
		return false, err
	}
	s.db.Delete(key)
	s.records++
	metrics.StoreOp("delete")
	return true, nil
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	val, ok := s.db.Get(key)
	return val, ok, nil
}

func (s *Store) Has(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	return s.db.Has(key), nil
}

func (s *Store) Items() (iter.Seq2[string, []byte], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.db.Items(), nil
}

func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.db.Len(), nil
}

// --------------------------------------------------------------------------
// Maintenance
// --------------------------------------------------------------------------

// Path returns the path of the backing file
func (s *Store) Path() string {
	return s.path
}

// Info returns information about the store and its engine
func (s *Store) Info() (store.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return store.Info{}, err
	}
	return store.Info{
		Path:      s.path,
		FileSize:  s.size,
		Records:   s.records,
		Live:      s.db.Len(),
		ReadOnly:  s.opts.ReadOnly,
		Engine:    s.db.GetInfo(),
		Truncated: s.truncated,
	}, nil
}

// Compact rewrites the backing file as a single snapshot of the live records.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWritable(); err != nil {
		return err
	}
	return s.compact()
}

// compact writes header and snapshot to a temp file next to the backing file
// and renames it into place.
//
// Thread-safety: callers must hold s.mu
func (s *Store) compact() error {
	if s.failed != nil {
		return s.failed
	}

	var snap bytes.Buffer
	if err := s.db.Save(&snap); err != nil {
		return store.WrapError(store.RetCStorage, "cannot snapshot engine", err)
	}
	buf, err := appendRecord(appendHeader(nil), record{typ: recSnapshot, value: snap.Bytes()})
	if err != nil {
		return store.WrapError(store.RetCStorage, "cannot encode snapshot", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".compact-*")
	if err != nil {
		return store.WrapError(store.RetCStorage, "cannot create compaction file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if st, err := s.file.Stat(); err == nil {
		_ = tmp.Chmod(st.Mode().Perm())
	}
	if _, err := tmp.Write(buf); err != nil {
		cleanup()
		return store.WrapError(store.RetCStorage, "cannot write compaction file", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return store.WrapError(store.RetCStorage, "cannot sync compaction file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return store.WrapError(store.RetCStorage, "cannot close compaction file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return store.WrapError(store.RetCStorage, "cannot replace database file", err)
	}
	syncDir(dir)

	f, err := openFile(s.path, os.O_RDWR|os.O_APPEND, 0)
	if err != nil {
		// the old handle points to the unlinked file, appends to it would be lost
		_ = s.file.Close()
		s.file = nil
		s.failed = store.WrapError(store.RetCStorage, "cannot reopen compacted database", err)
		log.Errorf("%s: %v", s.path, s.failed)
		return s.failed
	}
	_ = s.file.Close()
	s.file = f

	log.Infof("compacted %s: %d records -> %d, %d bytes -> %d", s.path, s.records, s.db.Len(), s.size, len(buf))
	s.size = int64(len(buf))
	s.records = s.db.Len()
	metrics.StoreOp("compact")
	return nil
}

// syncDir makes a rename durable. Errors are ignored, not every platform
// supports syncing directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// needsCompaction reports whether the log holds enough dead records to be rewritten
//
// Thread-safety: callers must hold s.mu
func (s *Store) needsCompaction() bool {
	if s.opts.ReadOnly || s.opts.CompactSlack < 0 || s.failed != nil {
		return false
	}
	return s.records > 2*s.db.Len()+s.opts.CompactSlack
}

// Close discards an open transaction, compacts the file if needed and
// releases the file and the engine. Closing twice returns RetCClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.closed = true

	if s.txn != nil {
		log.Warningf("closing %s with an open transaction, discarding it", s.path)
		s.txn = nil
	}

	// the log is complete without compaction, a failure is not reported to the caller
	if s.needsCompaction() {
		if err := s.compact(); err != nil {
			log.Errorf("compaction of %s failed: %v", s.path, err)
		}
	}

	var firstErr error
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			firstErr = store.WrapError(store.RetCStorage, "cannot close database", err)
		}
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = store.WrapError(store.RetCInternalError, "cannot close engine", err)
	}
	return firstErr
}
