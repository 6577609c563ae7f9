package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/ticker-relay/internal/errs"
)

type statement struct {
	sql  string
	args []any
}

// EnsureSchema creates the ticker table and its indexes if they do not exist,
// and converts it to a hypertable when configured.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return &errs.PersistenceError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, stmt := range s.schemaStatements() {
		if _, err := tx.Exec(ctx, stmt.sql, stmt.args...); err != nil {
			head, _, _ := strings.Cut(stmt.sql, "\n")
			return &errs.PersistenceError{Op: "schema", Err: fmt.Errorf("%s: %w", head, err)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &errs.PersistenceError{Op: "commit", Err: err}
	}

	s.logger.Info("schema ready", "table", s.table, "hypertable", s.hypertable)
	return nil
}

func (s *Sink) schemaStatements() []statement {
	table := pgx.Identifier{s.table}.Sanitize()
	byProduct := pgx.Identifier{s.table + "_product_time_idx"}.Sanitize()
	byTime := pgx.Identifier{s.table + "_time_idx"}.Sanitize()

	stmts := []statement{
		{sql: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	product_id     TEXT        NOT NULL,
	time           TIMESTAMPTZ NOT NULL,
	type           TEXT        NOT NULL,
	sequence       BIGINT,
	price          NUMERIC,
	open_24h       NUMERIC,
	volume_24h     NUMERIC,
	low_24h        NUMERIC,
	high_24h       NUMERIC,
	volume_30d     NUMERIC,
	best_bid       NUMERIC,
	best_ask       NUMERIC,
	side           TEXT,
	trade_id       BIGINT,
	last_size      NUMERIC,
	time_defaulted BOOLEAN     NOT NULL DEFAULT FALSE,
	ingested_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (product_id, time)
)`, table)},
		{sql: fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (product_id, time DESC)`, byProduct, table)},
		{sql: fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (time DESC)`, byTime, table)},
	}

	if s.hypertable {
		stmts = append(stmts,
			statement{sql: `CREATE EXTENSION IF NOT EXISTS timescaledb`},
			statement{
				sql:  `SELECT create_hypertable($1::text::regclass, 'time', if_not_exists => TRUE, migrate_data => TRUE)`,
				args: []any{table},
			},
		)
	}
	return stmts
}
