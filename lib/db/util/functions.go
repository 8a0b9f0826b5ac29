package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// GenerateSeed returns a random seed for the shard hash.
// The seed only influences the in-memory layout, never the stored data.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// UintKey is a 64 bit hash of a string key
type UintKey uint64

// HashString hashes s with FNV-1a, mixing the seed into the offset basis
func HashString(s string, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return UintKey(hash)
}
