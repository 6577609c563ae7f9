// Package sink persists ticker batches to PostgreSQL/TimescaleDB.
//
// Each batch is written in one transaction as a single multi-row
// INSERT ... ON CONFLICT (product_id, time) DO NOTHING, so replaying a batch
// leaves the stored rows unchanged.
package sink
