// Package pipeline moves records from the broker into the store with
// at-least-once semantics.
//
// The Collector polls records into bounded batches. The Coordinator persists
// each batch and only then commits its offsets. The Supervisor rebuilds the
// consumer after a failure so uncommitted records are replayed.
package pipeline
