package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ticker-relay/internal/broker"
	"github.com/rickgao/ticker-relay/internal/metrics"
	"github.com/rickgao/ticker-relay/internal/model"
	"github.com/rickgao/ticker-relay/internal/sink"
)

// Persister stores a batch of events atomically. *sink.Sink implements it.
type Persister interface {
	Persist(ctx context.Context, events []model.TickerEvent) (sink.Result, error)
}

// Stats are cumulative coordinator counters.
type Stats struct {
	Batches     int64
	Events      int64
	Skipped     int64
	Inserted    int64
	Conflicts   int64
	Commits     int64
	LastBatchID uuid.UUID
}

// Coordinator persists each batch and then commits its offsets.
type Coordinator struct {
	collector *Collector
	consumer  broker.Consumer
	store     Persister
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewCoordinator creates a Coordinator reading from consumer.
func NewCoordinator(consumer broker.Consumer, decoder Decoder, store Persister, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Coordinator{
		collector: NewCollector(consumer, decoder, cfg, m, logger),
		consumer:  consumer,
		store:     store,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With("component", "coordinator"),
	}
}

// Stats returns cumulative counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Skipped = c.collector.Skipped()
	return s
}

// Run processes batches until ctx is cancelled or a batch fails.
//
// On cancellation the in-flight batch is persisted and committed within the
// shutdown timeout and Run returns nil. A persist failure is returned without
// committing, so the batch's records are delivered again.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator started",
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
		"poll_timeout", c.cfg.PollTimeout,
	)

	for {
		batch, err := c.collector.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.shutdown(batch)
			}
			return err
		}

		if err := c.process(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return c.shutdown(batch)
			}
			return err
		}
	}
}

// process persists then commits one batch.
func (c *Coordinator) process(ctx context.Context, b Batch) error {
	var res sink.Result

	if len(b.Events) > 0 {
		start := time.Now()
		var err error
		res, err = c.store.Persist(ctx, b.Events)
		if err != nil {
			c.metrics.PersistFailed()
			c.logger.Error("batch persist failed",
				"batch_id", b.ID,
				"events", len(b.Events),
				"records", len(b.Records),
				"first_offset", b.Records[0].Offset,
				"error", err,
			)
			return fmt.Errorf("persist batch %s: %w", b.ID, err)
		}
		c.metrics.BatchPersisted(len(b.Events), time.Since(start))
	}

	if !b.Empty() {
		if err := c.consumer.Commit(ctx, b.Records); err != nil {
			c.logger.Error("offset commit failed",
				"batch_id", b.ID,
				"records", len(b.Records),
				"error", err,
			)
			return fmt.Errorf("commit batch %s: %w", b.ID, err)
		}
		c.metrics.Committed()
	}

	c.mu.Lock()
	c.stats.Batches++
	c.stats.Events += int64(len(b.Events))
	c.stats.Inserted += int64(res.Inserted)
	c.stats.Conflicts += int64(res.Conflicts)
	if !b.Empty() {
		c.stats.Commits++
	}
	c.stats.LastBatchID = b.ID
	c.mu.Unlock()

	c.logger.Debug("batch committed",
		"batch_id", b.ID,
		"events", len(b.Events),
		"skipped", b.Skipped(),
		"inserted", res.Inserted,
		"conflicts", res.Conflicts,
	)
	return nil
}

// shutdown flushes the in-flight batch with a fresh context.
func (c *Coordinator) shutdown(b Batch) error {
	if b.Empty() {
		c.logger.Info("coordinator stopped")
		return nil
	}

	c.logger.Info("flushing in-flight batch before shutdown",
		"batch_id", b.ID,
		"events", len(b.Events),
		"records", len(b.Records),
	)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()

	if err := c.process(ctx, b); err != nil {
		return fmt.Errorf("shutdown flush: %w", err)
	}
	c.logger.Info("coordinator stopped")
	return nil
}
