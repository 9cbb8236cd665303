// Package metrics holds the per-path health state of the controller.
//
// It provides:
//   - A thread-safe store of path metrics with per-path locking
//   - The pure quality scoring function used for path ranking
//   - Latency spike detection over a fixed-size rolling history
//   - Prometheus instruments for path quality, loss and failovers
//
// # Locking Model
//
// Each path carries its own mutex; the store-level lock only guards the
// path map itself. Recording a sample for one path therefore never
// blocks a reader of an unrelated path, which keeps packet handling
// latency independent of the telemetry cycle.
//
// # Status Ownership
//
// Path status transitions are owned by the failover controller in
// pkg/monitor. Other components read status but never write it.
package metrics
