package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/ticker-relay/internal/backoff"
	"github.com/rickgao/ticker-relay/internal/broker"
	"github.com/rickgao/ticker-relay/internal/metrics"
)

// ConsumerFactory creates a fresh consumer for each run.
type ConsumerFactory func() (broker.Consumer, error)

// Supervisor runs a Coordinator over a fresh consumer, rebuilding both after a
// failure. Rebuilding the consumer rewinds to the last committed offsets.
type Supervisor struct {
	newConsumer ConsumerFactory
	decoder     Decoder
	store       Persister
	cfg         Config
	metrics     *metrics.Metrics
	logger      *slog.Logger

	current  atomic.Pointer[Coordinator]
	restarts atomic.Int64
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(newConsumer ConsumerFactory, decoder Decoder, store Persister, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		newConsumer: newConsumer,
		decoder:     decoder,
		store:       store,
		cfg:         cfg.withDefaults(),
		metrics:     m,
		logger:      logger,
	}
}

// Stats returns the counters of the current coordinator.
func (s *Supervisor) Stats() Stats {
	if c := s.current.Load(); c != nil {
		return c.Stats()
	}
	return Stats{}
}

// Restarts returns how many times the pipeline was rebuilt.
func (s *Supervisor) Restarts() int64 {
	return s.restarts.Load()
}

// Run returns nil after a clean shutdown, or an error once MaxRestarts
// consecutive runs have failed or the shutdown flush failed.
func (s *Supervisor) Run(ctx context.Context) error {
	b := backoff.New(s.cfg.RestartBaseDelay, s.cfg.RestartMaxDelay)
	failures := 0

	for {
		progressed, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return err
		}

		if progressed {
			b.Reset()
			failures = 0
		}
		failures++

		if s.cfg.MaxRestarts > 0 && failures > s.cfg.MaxRestarts {
			return fmt.Errorf("pipeline: giving up after %d consecutive failures: %w", failures, err)
		}

		wait := b.Next()
		s.logger.Warn("pipeline failed, rebuilding consumer",
			"error", err,
			"attempt", failures,
			"wait", wait,
		)
		s.restarts.Add(1)
		s.metrics.Restarted()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// runOnce runs one coordinator to completion and closes its consumer.
func (s *Supervisor) runOnce(ctx context.Context) (bool, error) {
	consumer, err := s.newConsumer()
	if err != nil {
		return false, fmt.Errorf("create consumer: %w", err)
	}

	coord := NewCoordinator(consumer, s.decoder, s.store, s.cfg, s.metrics, s.logger)
	s.current.Store(coord)

	runErr := coord.Run(ctx)

	if err := consumer.Close(); err != nil {
		s.logger.Warn("consumer close failed", "error", err)
	}
	return coord.Stats().Batches > 0, runErr
}
