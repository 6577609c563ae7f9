// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Feed connection state and frame counts
//   - Publisher delivery outcomes and queue rejections
//   - Batch sizes, persist latency and commit counts
//   - Sink inserts, conflicts and defaulted values
//
// All recording methods are safe to call on a nil *Metrics.
package metrics
