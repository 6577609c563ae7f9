package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/ticker-relay/internal/broker"
	"github.com/rickgao/ticker-relay/internal/errs"
	"github.com/rickgao/ticker-relay/internal/metrics"
	"github.com/rickgao/ticker-relay/internal/model"
)

// recordsPerEvent caps a batch at this many records per BatchSize slot, so a
// run of undecodable records is still committed in bounded batches.
const recordsPerEvent = 4

// Decoder turns record payloads into events. *codec.Codec implements it.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (model.TickerEvent, error)
}

// Collector accumulates polled records into batches.
type Collector struct {
	consumer broker.Consumer
	decoder  Decoder
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	skipped atomic.Int64
}

// NewCollector creates a Collector.
func NewCollector(consumer broker.Consumer, decoder Decoder, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		consumer: consumer,
		decoder:  decoder,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		logger:   logger.With("component", "collector"),
		now:      time.Now,
	}
}

// Skipped returns the number of undecodable records seen.
func (c *Collector) Skipped() int64 {
	return c.skipped.Load()
}

// Next polls until the batch is full, a poll finds nothing while the batch is
// non-empty, or the batch is older than the flush interval. A batch is also
// full once it holds recordsPerEvent*BatchSize records, decodable or not.
//
// On ctx cancellation or a poll failure the partial batch is returned along
// with the error.
func (c *Collector) Next(ctx context.Context) (Batch, error) {
	b := newBatch(c.cfg.BatchSize)

	for {
		if !b.Empty() && c.cfg.FlushInterval > 0 && c.now().Sub(b.OpenedAt) >= c.cfg.FlushInterval {
			return b, nil
		}

		rec, err := c.consumer.Poll(ctx, c.cfg.PollTimeout)
		if err != nil {
			return b, err
		}
		if rec == nil {
			if !b.Empty() {
				return b, nil
			}
			continue
		}

		if b.Empty() {
			b.OpenedAt = c.now()
		}

		event, err := c.decoder.Decode(ctx, rec.Value)
		if err != nil {
			if !errs.IsRecordLevel(err) {
				// The record was never looked at, so it must not be committed.
				return b, err
			}
			b.Records = append(b.Records, *rec)
			c.skipped.Add(1)
			c.metrics.RecordSkipped()
			c.logger.Warn("skipping undecodable record",
				"topic", rec.Topic,
				"partition", rec.Partition,
				"offset", rec.Offset,
				"error", err,
			)
			if len(b.Records) >= recordsPerEvent*c.cfg.BatchSize {
				return b, nil
			}
			continue
		}

		b.Records = append(b.Records, *rec)
		b.Events = append(b.Events, event)
		if len(b.Events) >= c.cfg.BatchSize {
			return b, nil
		}
	}
}
