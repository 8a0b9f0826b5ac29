// Package logging provides the log output of bdb-tool.
//
// Packages obtain their logger with logger.GetLogger(name) from dragonboat's
// logger package. Init replaces dragonboat's default factory with one that
// writes lines of the form
//
//	2025/01/02 15:04:05 WARN  | tool       | Line 3 in 'dump.txt' has invalid format. Skipping
//
// to stderr and sets the level of every logger listed in Names.
package logging
