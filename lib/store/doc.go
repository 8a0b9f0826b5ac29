// Package store provides the record store abstraction of bdb-tool: a mapping
// from string keys to byte values with get/set/delete/has, snapshot
// iteration and counting, plus a unified error type.
//
// The package focuses on:
//   - A unified interface (IStore) that the command layer works against,
//     independent of whether the caller holds a plain store or a transaction
//   - Pluggable in-memory engines through the DBFactory pattern
//   - Typed errors (Error with a RetCode) so callers can tell a busy lock from
//     a corrupt file from an I/O failure
//
// Key Components:
//
//   - IStore Interface: The core abstraction. A missing key is a normal
//     outcome reported through boolean results; errors are always *Error.
//
//   - Error System: Error carries a RetCode, a message and an optional cause.
//     The Err* sentinels work with errors.Is, comparing codes only.
//
//   - DBFactory: A function type that creates the db.KVDB engine a store keeps
//     its records in.
//
// Implementations:
//
//   - File Store (fstore): A log-structured, file-backed implementation. Every
//     mutation is appended to the backing file and synced before it returns.
//     fstore.Txn implements IStore as well, buffering writes until Commit.
//     Available in the "github.com/ValentinKolb/bdbtool/lib/store/fstore" package.
//
// The testing subpackage contains a conformance suite (RunStoreTests) that
// every IStore implementation is checked against.
package store
