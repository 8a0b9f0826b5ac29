package db

import (
	"io"
	"iter"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplHashDB Implementation = "hashdb"
)

// MaxFieldSize is the largest key or value an engine has to store and load
const MaxFieldSize = 1 << 30

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet     Feature = 1 << iota // Support for Set operations
	FeatureGet                         // Support for Get operations
	FeatureDelete                      // Support for Delete operations
	FeatureHas                         // Support for Has operations
	FeatureIterate                     // Support for Items and Len
	FeatureSave                        // Support for Save operations
	FeatureLoad                        // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureHas:
		return "Has"
	case FeatureIterate:
		return "Iterate"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Entries           int            `json:"entries"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for in-memory key-value engines.
// Persistence is the caller's concern: an engine only knows how to write a
// snapshot of itself to an io.Writer and how to rebuild itself from one.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// If the key already exists, the old value is overwritten.
	Set(key string, value []byte)

	// Delete removes an entry with the specified key.
	// The return value reports whether the key existed.
	Delete(key string) (deleted bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is a copy and may be modified by the caller.
	Get(key string) (value []byte, loaded bool)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool)

	// Items returns a single-use sequence over a snapshot of all entries,
	// taken when Items is called. The order is ascending by key.
	Items() iter.Seq2[string, []byte]

	// Len returns the number of entries.
	Len() int

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save writes a snapshot of the current state of the database to w.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the snapshot read from r.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close releases the resources held by the database.
	Close() (err error)
}
