// Package metrics collects relay activity without sitting on the message path.
//
// Tracked values:
//   - Message, error and reconnect counters (lock-free)
//   - A bounded window of recent handling latencies for p50/p95
//   - A bounded log of session lifecycle events
//
// Samples are pooled across all rooms.
package metrics
