// Package hashdb implements the db.KVDB interface as an in-memory hash table
// split into independently locked shards.
//
// Key Components:
//
//   - hashImpl: The database structure implementing db.KVDB. Keys are assigned
//     to shards with a seeded FNV-1a hash (util.HashString); every shard is an
//     xsync.MapOf so reads and writes on different keys never contend on a
//     global lock. A RWMutex only guards the shard slice itself, which Load
//     replaces wholesale.
//
//   - Snapshots: Items and Save first deep-copy all entries and sort them by key.
//     Iteration order is therefore stable and independent of the random seed,
//     and neither operation observes writes made after the copy was taken.
//
// Persistence Format:
//
//  1. Magic number "HASHDB\x00\x00"
//  2. Version number (currently 1)
//  3. Seed of the shard hash
//  4. Number of entries (uint64)
//  5. For each entry: key length (uint32), key, value length (uint32), value
//
// All integers are little endian. Load builds the new shards on the side and
// swaps them in only after the whole snapshot was read, so a truncated or
// foreign snapshot leaves the database unchanged.
//
// The engine does not persist anything by itself; see the fstore package for
// the file-backed store that embeds these snapshots in its log.
package hashdb
