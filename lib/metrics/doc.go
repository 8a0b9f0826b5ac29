// Package metrics keeps the process-wide operation counters of bdb-tool and
// exports them in the Prometheus text format.
//
// bdb-tool is a single-shot process, so nothing is scraped. Instead, when the
// --metrics-file flag is set, the CLI calls WriteFile at exit and the file can
// be picked up by a node_exporter textfile collector.
package metrics
