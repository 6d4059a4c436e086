// Package stats keeps the process-wide crawl counters and derives the
// real-time health figures reported by the crawler status.
//
// Counters are mutated by the fetch path and the orchestrator and read by
// status and metrics consumers. Every update is forwarded to an optional
// Observer, which is how the prometheus exporter stays in sync.
package stats
