// Package db provides a standardized interface for in-memory key-value engines.
// It defines the KVDB interface that the file-backed record store builds on,
// so the store can stay agnostic of how records are laid out in memory.
//
// The package focuses on:
//   - A unified interface for key-value operations
//   - Feature discovery through capability flags
//   - Snapshot persistence (Save, Load) on plain io.Writer / io.Reader
//   - Metadata reporting for the info command
//
// Key Components:
//
//   - KVDB Interface: The core interface that all engines must satisfy.
//     It provides methods for basic operations (Set, Get, Has, Delete),
//     snapshot iteration (Items, Len), metadata retrieval (GetInfo)
//     and persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the available engines (currently "hashdb").
//
//   - Database Information: The DatabaseInfo structure reports entry counts,
//     an estimated size and implementation-specific metadata. Size values are
//     estimates since a precise calculation would require a full scan.
//
// Note on Iteration:
//   - Items takes a snapshot when it is called. Writes that happen while the
//     sequence is consumed are not observed by it, and the sequence can only be
//     consumed once.
//
// Note on Durability:
//   - Engines are purely in-memory. The fstore package persists every mutation
//     to its own append-only file and uses Save/Load only for compaction
//     snapshots.
//
// Related Packages:
//
// The engines/hashdb package (github.com/ValentinKolb/bdbtool/lib/db/engines/hashdb)
// provides a sharded hash table implementation of KVDB.
//
// The testing package (github.com/ValentinKolb/bdbtool/lib/db/testing) provides
// standardized tests and benchmarks for implementations of the KVDB interface.
package db
