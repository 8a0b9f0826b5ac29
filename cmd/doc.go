// Package cmd implements the command-line interface of bdb-tool. Every
// invocation runs exactly one command against one database file.
//
// The package is organized into several subpackages:
//
//   - kv: The data commands (get, set, delete, rename, dump, restore, count,
//     compact, info) and the perf benchmark
//   - util: Shared utilities for flags, configuration and exit hooks (internal use)
//
// Configuration is read from flags, BDBTOOL_* environment variables and the
// .env and .env.local files of the working directory, in that order of
// precedence. Run returns the exit code; Execute wires it to the process.
//
// See bdb-tool --help or bdb-tool --man for a list of all commands.
package cmd
