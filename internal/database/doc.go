// Package database opens the PostgreSQL/TimescaleDB pool the sink writes to.
package database
