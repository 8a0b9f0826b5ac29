// Package util provides helpers shared by the engines of the db package.
//
// The package contains:
//   - functions: seed generation and the seeded FNV-1a hash used for shard selection
//   - statistics: a SizeHistogram and shard distribution statistics used by GetInfo
package util
