// Package tool implements the commands of bdb-tool on top of a coord.Strategy.
//
// Every command opens exactly one scope (read scopes for get, dump, count and
// info, write scopes otherwise), commits it on success and aborts it on any
// error, then prints its result line. Missing keys are normal outcomes with
// their own result lines. Errors are typed:
//
//   - *UsageError for bad arguments (raised by the CLI before a store is opened)
//   - *ConflictError when the destination of a rename exists
//   - *store.Error for everything the storage or locking layer reports
//
// Result maps an error to its outcome class, which the CLI turns into an exit code.
package tool
