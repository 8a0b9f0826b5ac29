// Package testing provides standardised tests and benchmarks for
// engines that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A conformance suite for the KVDB contract (copy semantics,
//     snapshot iteration, Save/Load round trips, concurrent use)
//   - benchmark: Performance tests for the common engine operations
//
// Example usage:
//
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
