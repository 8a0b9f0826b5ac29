package hashdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/ValentinKolb/bdbtool/lib/db"
	"github.com/ValentinKolb/bdbtool/lib/db/engines/hashdb/internal"
	"github.com/ValentinKolb/bdbtool/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum      = "HASHDB\x00\x00" // Snapshot format identifier
	hashdbVersion = 1                // Snapshot format version
)

// --------------------------------------------------------------------------
// Core hash database structure
// --------------------------------------------------------------------------

// hashImpl implements db.KVDB as a set of independently locked hash shards
type hashImpl struct {
	mu        sync.RWMutex // guards shards and seed against Load
	numShards int
	seed      uint64
	shards    []*internal.Shard
}

// DBOptions configures the hashImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default hashImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewHashDB creates a new HashDB instance with the specified options (optional)
func NewHashDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	return &hashImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
		shards:    internal.NewShards(opts.NumShards),
	}
}

// shardFor returns the shard responsible for key.
// The caller must hold mu (read or write).
func (h *hashImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, h.seed), h.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry.
// The value is copied, so the caller may reuse the slice afterwards.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *hashImpl) Set(key string, value []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	h.shardFor(key).Data.Store(key, valueCopy)
}

// Delete removes an entry and reports whether it existed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *hashImpl) Delete(key string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, loaded := h.shardFor(key).Data.LoadAndDelete(key)
	return loaded
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a copy of the value for a key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *hashImpl) Get(key string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	value, ok := h.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false
	}
	data := make([]byte, len(value))
	copy(data, value)
	return data, true
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (h *hashImpl) Has(key string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.shardFor(key).Data.Load(key)
	return ok
}

// Len returns the number of entries over all shards.
func (h *hashImpl) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, shard := range h.shards {
		n += shard.Data.Size()
	}
	return n
}

// Items returns a sequence over a sorted snapshot of all entries.
// The snapshot is taken immediately, the sequence can be consumed once.
func (h *hashImpl) Items() iter.Seq2[string, []byte] {
	pairs := h.snapshot()
	consumed := false

	return func(yield func(string, []byte) bool) {
		if consumed {
			return
		}
		consumed = true
		for _, p := range pairs {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// snapshot deep-copies all entries and sorts them by key
func (h *hashImpl) snapshot() []internal.Pair {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var pairs []internal.Pair
	for _, shard := range h.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			valueCopy := make([]byte, len(value))
			copy(valueCopy, value)
			pairs = append(pairs, internal.Pair{Key: key, Value: valueCopy})
			return true
		})
	}

	slices.SortFunc(pairs, func(a, b internal.Pair) int {
		return strings.Compare(a.Key, b.Key)
	})
	return pairs
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a consistent snapshot of the database to the writer.
func (h *hashImpl) Save(w io.Writer) error {
	pairs := h.snapshot()

	h.mu.RLock()
	seed := h.seed
	h.mu.RUnlock()

	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(hashdbVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, seed); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(pairs))); err != nil {
		return err
	}

	for _, p := range pairs {
		if err := writeField(bw, []byte(p.Key)); err != nil {
			return err
		}
		if err := writeField(bw, p.Value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the database content with the snapshot read from r.
// On error the previous content is kept.
func (h *hashImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if !bytes.Equal(magicBytes, []byte(magicNum)) {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != hashdbVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, hashdbVersion)
	}

	var seed uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	// Build the new shards on the side so a broken snapshot leaves us untouched
	shards := internal.NewShards(h.numShards)
	for i := uint64(0); i < count; i++ {
		key, err := readField(br)
		if err != nil {
			return fmt.Errorf("read key %d: %w", i, err)
		}
		value, err := readField(br)
		if err != nil {
			return fmt.Errorf("read value %d: %w", i, err)
		}
		internal.GetShard(util.HashString(string(key), seed), shards).Data.Store(string(key), value)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seed = seed
	h.shards = shards

	return nil
}

func writeField(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readField(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > db.MaxFieldSize {
		return nil, fmt.Errorf("field length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (h *hashImpl) GetInfo() db.DatabaseInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	histogram := util.NewSizeHistogram()
	shardSizes := make([]float64, len(h.shards))
	entries := 0

	for i, shard := range h.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			histogram.AddSample(len(key) + len(value))
			return true
		})
		size := shard.Data.Size()
		shardSizes[i] = float64(size)
		entries += size
	}

	// weighted estimate (60% median, 40% average) plus 8 bytes of length prefixes
	entryOverhead := 8
	medianSize := histogram.MedianEstimate() + entryOverhead
	avgSize := histogram.AverageSize() + entryOverhead
	sizeBytes := entries * ((medianSize*60 + avgSize*40) / 100)

	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		MedianEntrySize   int                    `json:"median_entry_size"`
		P90EntrySize      int                    `json:"p90_entry_size"`
	}{
		ShardCount:        len(h.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		MedianEntrySize:   histogram.MedianEstimate(),
		P90EntrySize:      histogram.GetPercentileEstimate(90),
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Entries:   entries,
		DbType:    db.ImplHashDB,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureIterate, db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (h *hashImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureIterate |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close drops all entries
func (h *hashImpl) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shards = internal.NewShards(h.numShards)
	return nil
}
