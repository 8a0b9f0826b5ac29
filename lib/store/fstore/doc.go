// Package fstore implements store.IStore on top of a single log-structured file.
//
// All records are held in memory by a db.KVDB engine (hashdb unless another
// factory is given). The backing file is an append-only log of the mutations:
//
//	header  : "BDBTOOL\x00" | version u8
//	record* : crc32c u32 | type u8 | keyLen u32 | valLen u32 | key | value
//
// Record types are put, delete, begin, commit and snapshot. A snapshot record
// holds a complete engine snapshot (db.KVDB Save format) and replaces all state
// before it.
//
// Durability:
//
//   - Every Set and Delete appends its record and syncs the file before it returns.
//   - Txn buffers its writes and Commit appends them as one batch framed by a
//     begin and a commit record carrying the transaction id.
//
// Recovery:
//
// Open replays the log. Records inside a batch are applied only when the commit
// record of the batch is read. A short record, a checksum mismatch or a batch
// without commit ends replay; everything before is kept and, for writable
// stores, the rest of the file is truncated. A record that passed its checksum
// but cannot be applied fails Open with RetCCorrupt and the file is left as it is.
//
// Compaction:
//
// Compact writes the header and a single snapshot record to a temp file next to
// the backing file, syncs it and renames it over the backing file. A writable
// store compacts itself on Close when the log holds more than
// 2*live + CompactSlack records.
//
// Thread Safety:
//
// A Store is safe for concurrent use within a process. Coordination between
// processes is not done here; see the coord package.
package fstore
