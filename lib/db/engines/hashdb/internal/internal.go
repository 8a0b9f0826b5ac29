package internal

import (
	"github.com/ValentinKolb/bdbtool/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the key space.
// Each shard has its own concurrent map.
type Shard struct {
	Data *xsync.MapOf[string, []byte]
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, []byte](),
	}
}

// NewShards creates n empty shards
func NewShards(n int) []*Shard {
	shards := make([]*Shard, n)
	for i := range shards {
		shards[i] = NewShard()
	}
	return shards
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}

// Pair is a key-value pair copied out of a shard
type Pair struct {
	Key   string
	Value []byte
}
