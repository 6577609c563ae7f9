package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/ticker-relay/internal/errs"
	"github.com/rickgao/ticker-relay/internal/metrics"
	"github.com/rickgao/ticker-relay/internal/model"
)

// ErrBatchTooLarge is returned when a batch exceeds MaxBatchRows.
var ErrBatchTooLarge = errors.New("batch exceeds statement parameter limit")

// TxBeginner starts transactions. *pgxpool.Pool implements it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config configures a Sink.
type Config struct {
	Table      string
	Hypertable bool
}

// Result describes one persisted batch.
type Result struct {
	Rows            int
	Inserted        int
	Conflicts       int
	DefaultedTimes  int
	InvalidDecimals int
}

// Stats are cumulative sink counters.
type Stats struct {
	Inserts         int64
	Conflicts       int64
	Errors          int64
	Flushes         int64
	DefaultedTimes  int64
	InvalidDecimals int64
}

// Sink writes ticker batches to the store.
type Sink struct {
	db         TxBeginner
	table      string
	hypertable bool
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// now supplies fallback timestamps for unparseable event times.
	now func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a Sink.
func New(db TxBeginner, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	table := cfg.Table
	if table == "" {
		table = "tickers"
	}
	return &Sink{
		db:         db,
		table:      table,
		hypertable: cfg.Hypertable,
		metrics:    m,
		logger:     logger.With("component", "sink"),
		now:        time.Now,
	}
}

// Stats returns cumulative counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Persist writes events in a single transaction. On error nothing from the
// batch is visible and a *errs.PersistenceError is returned.
//
// Unparseable times are replaced with the persistence clock and flagged in
// time_defaulted. Unparseable decimals are stored as NULL. Neither aborts the batch.
func (s *Sink) Persist(ctx context.Context, events []model.TickerEvent) (Result, error) {
	res := Result{Rows: len(events)}
	if len(events) == 0 {
		return res, nil
	}
	if len(events) > MaxBatchRows {
		return res, s.failed(&errs.PersistenceError{
			Op:  "build",
			Err: fmt.Errorf("%w: %d rows > %d", ErrBatchTooLarge, len(events), MaxBatchRows),
		})
	}

	now := s.now()
	args := make([]any, 0, len(events)*len(insertColumns))
	for i, e := range events {
		// Distinct fallbacks keep defaulted rows of one product from colliding.
		// They follow the clock, so a replayed batch inserts new rows for them.
		fallback := now.Add(time.Duration(i) * time.Microsecond)

		vals, issues := rowArgs(e, fallback)
		args = append(args, vals...)

		if issues.timeDefaulted {
			res.DefaultedTimes++
			s.logger.Warn("unparseable event time, using persistence time",
				"product_id", e.ProductID,
				"time", e.Time,
				"sequence", int64Arg(e.Sequence),
			)
		}
		if len(issues.invalidDecimals) > 0 {
			res.InvalidDecimals += len(issues.invalidDecimals)
			s.logger.Warn("unparseable decimal fields stored as NULL",
				"product_id", e.ProductID,
				"time", e.Time,
				"fields", issues.invalidDecimals,
			)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return res, s.failed(&errs.PersistenceError{Op: "begin", Err: err})
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, s.insertSQL(len(events)), args...)
	if err != nil {
		return res, s.failed(&errs.PersistenceError{Op: "insert", Err: err})
	}

	if err := tx.Commit(ctx); err != nil {
		return res, s.failed(&errs.PersistenceError{Op: "commit", Err: err})
	}

	res.Inserted = int(tag.RowsAffected())
	res.Conflicts = res.Rows - res.Inserted

	s.mu.Lock()
	s.stats.Inserts += int64(res.Inserted)
	s.stats.Conflicts += int64(res.Conflicts)
	s.stats.DefaultedTimes += int64(res.DefaultedTimes)
	s.stats.InvalidDecimals += int64(res.InvalidDecimals)
	s.stats.Flushes++
	s.mu.Unlock()

	s.metrics.SinkRows("inserted", res.Inserted)
	s.metrics.SinkRows("conflict", res.Conflicts)
	s.metrics.SinkRows("defaulted_time", res.DefaultedTimes)
	s.metrics.SinkRows("invalid_decimal", res.InvalidDecimals)

	return res, nil
}

func (s *Sink) failed(err error) error {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
	return err
}

// insertSQL builds the multi-row insert for n rows.
func (s *Sink) insertSQL(n int) string {
	cols := len(insertColumns)

	var b strings.Builder
	b.Grow(128 + n*cols*5)
	b.WriteString("INSERT INTO ")
	b.WriteString(pgx.Identifier{s.table}.Sanitize())
	b.WriteString(" (")
	b.WriteString(strings.Join(insertColumns, ", "))
	b.WriteString(") VALUES ")

	p := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(p))
			p++
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT (product_id, time) DO NOTHING")
	return b.String()
}
