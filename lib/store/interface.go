package store

import (
	"fmt"
	"iter"

	"github.com/ValentinKolb/bdbtool/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the generic interface for interacting with a key–value store.
// A missing key is never an error: Get and Delete report it through their
// boolean results. Errors are reserved for storage failures and are of type *Error.
type IStore interface {
	// Set inserts or updates a key–value pair.
	Set(key string, value []byte) (err error)
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a key exists in the store.
	Has(key string) (loaded bool, err error)
	// Delete deletes a key–value pair and reports whether it existed.
	Delete(key string) (deleted bool, err error)
	// Items returns a lazy, single-use sequence over a consistent snapshot of all pairs.
	Items() (items iter.Seq2[string, []byte], err error)
	// Count returns the number of pairs a full iteration would produce.
	Count() (n int, err error)
}

// Info describes a store and the engine underneath it
type Info struct {
	Path      string          `json:"path"`
	FileSize  int64           `json:"file_size"`
	Records   int             `json:"records"`
	Live      int             `json:"live"`
	ReadOnly  bool            `json:"read_only"`
	Engine    db.DatabaseInfo `json:"engine"`
	Truncated int64           `json:"truncated"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the underlying cause.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying error, may be nil.
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Msg == "" && t.Err == nil
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new store error that wraps err.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// Sentinel values for errors.Is, e.g. errors.Is(err, store.ErrBusy)
var (
	ErrStorage   = &Error{Code: RetCStorage}
	ErrCorrupt   = &Error{Code: RetCCorrupt}
	ErrBusy      = &Error{Code: RetCBusy}
	ErrReadOnly  = &Error{Code: RetCReadOnly}
	ErrClosed    = &Error{Code: RetCClosed}
	ErrTxnActive = &Error{Code: RetCTxnActive}
	ErrTxnDone   = &Error{Code: RetCTxnDone}
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCStorage                             // 3: Reading or writing the backing file failed.
	RetCCorrupt                             // 4: The backing file is not a store, has an unknown version or a record that cannot be applied.
	RetCBusy                                // 5: A lock could not be acquired in time.
	RetCReadOnly                            // 6: Mutation on a store opened read-only.
	RetCClosed                              // 7: Operation on a closed store.
	RetCTxnActive                           // 8: A transaction is already open on the store.
	RetCTxnDone                             // 9: The transaction was already committed or rolled back.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCStorage:
		return "StorageError"
	case RetCCorrupt:
		return "CorruptStore"
	case RetCBusy:
		return "Busy"
	case RetCReadOnly:
		return "ReadOnly"
	case RetCClosed:
		return "Closed"
	case RetCTxnActive:
		return "TxnActive"
	case RetCTxnDone:
		return "TxnDone"
	default:
		return "Unknown"
	}
}
