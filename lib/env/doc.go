// Package env manages environment homes.
//
// An environment home is a directory shared by all processes that coordinate
// through it. It holds one lock file per database (__db.<hash>.lock, where the
// hash is taken over the absolute database path) and an optional DB_CONFIG
// file in TOML format:
//
//	lock_timeout  = "5s"  # bound on lock waits, 0 waits forever
//	compact_slack = 1000  # dead records tolerated before compaction on close
//	shards        = 16    # hash engine shard count
//
// Unknown settings are logged and ignored.
package env
