// Package publisher encodes ticker events and hands them to the broker producer.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/ticker-relay/internal/broker"
	"github.com/rickgao/ticker-relay/internal/metrics"
	"github.com/rickgao/ticker-relay/internal/model"
)

// Encoder serializes events. *codec.Codec implements it.
type Encoder interface {
	Encode(event model.TickerEvent) ([]byte, error)
}

// Producer sends records. *broker.Producer implements it.
type Producer interface {
	Produce(ctx context.Context, topic, key string, value []byte, onDelivery broker.DeliveryFunc) error
	Close() error
}

// Stats are cumulative publisher counters.
type Stats struct {
	Accepted    int64 // handed to the producer
	Delivered   int64
	Failed      int64 // delivery errors
	Invalid     int64 // failed validation or encoding
	Rejected    int64 // queue full or too large
	UnknownKeys int64
}

// Config configures a Publisher.
type Config struct {
	Topic string

	// OnDelivery, when set, is called after the publisher has recorded a delivery outcome.
	OnDelivery broker.DeliveryFunc
}

// Publisher turns events into keyed broker records.
type Publisher struct {
	cfg      Config
	encoder  Encoder
	producer Producer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	accepted    atomic.Int64
	delivered   atomic.Int64
	failed      atomic.Int64
	invalid     atomic.Int64
	rejected    atomic.Int64
	unknownKeys atomic.Int64
}

// New creates a Publisher.
func New(cfg Config, encoder Encoder, producer Producer, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:      cfg,
		encoder:  encoder,
		producer: producer,
		metrics:  m,
		logger:   logger.With("component", "publisher"),
	}
}

// Publish encodes event and submits it keyed by product id. Records without a
// product id are keyed with model.UnknownProductID.
//
// Validation errors, broker.ErrQueueFull and broker.ErrMessageTooLarge are
// returned for the single record. Delivery outcomes arrive later via the
// delivery callback.
func (p *Publisher) Publish(ctx context.Context, event model.TickerEvent) error {
	value, err := p.encoder.Encode(event)
	if err != nil {
		p.invalid.Add(1)
		p.metrics.PublishOutcome(metrics.OutcomeInvalid)
		return fmt.Errorf("encode %s event: %w", event.PartitionKey(), err)
	}

	key := event.PartitionKey()
	if key == model.UnknownProductID {
		p.unknownKeys.Add(1)
		p.metrics.UnknownKey()
		p.logger.Debug("event has no product_id, using fallback key",
			"type", event.Type,
			"time", event.Time,
		)
	}

	if err := p.producer.Produce(ctx, p.cfg.Topic, key, value, p.onDelivery); err != nil {
		p.rejected.Add(1)
		p.metrics.PublishOutcome(metrics.OutcomeRejected)
		return fmt.Errorf("produce key=%s: %w", key, err)
	}

	p.accepted.Add(1)
	p.metrics.PublishOutcome(metrics.OutcomeAccepted)
	return nil
}

func (p *Publisher) onDelivery(d broker.Delivery) {
	if d.Err != nil {
		p.failed.Add(1)
		p.metrics.PublishOutcome(metrics.OutcomeFailed)
		p.logger.Error("record delivery failed",
			"topic", d.Topic,
			"partition", d.Partition,
			"key", d.Key,
			"error", d.Err,
		)
	} else {
		p.delivered.Add(1)
		p.metrics.PublishOutcome(metrics.OutcomeDelivered)
		p.logger.Debug("record delivered",
			"topic", d.Topic,
			"partition", d.Partition,
			"offset", d.Offset,
			"key", d.Key,
		)
	}

	if p.cfg.OnDelivery != nil {
		p.cfg.OnDelivery(d)
	}
}

// Stats returns cumulative counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Accepted:    p.accepted.Load(),
		Delivered:   p.delivered.Load(),
		Failed:      p.failed.Load(),
		Invalid:     p.invalid.Load(),
		Rejected:    p.rejected.Load(),
		UnknownKeys: p.unknownKeys.Load(),
	}
}

// Close flushes the producer: it returns after every accepted record has
// reported its delivery outcome.
func (p *Publisher) Close() error {
	err := p.producer.Close()
	s := p.Stats()
	p.logger.Info("publisher closed",
		"accepted", s.Accepted,
		"delivered", s.Delivered,
		"failed", s.Failed,
		"invalid", s.Invalid,
		"rejected", s.Rejected,
	)
	return err
}
