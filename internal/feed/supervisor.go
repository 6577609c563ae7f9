package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/ticker-relay/internal/backoff"
	"github.com/rickgao/ticker-relay/internal/metrics"
)

// SupervisorConfig controls reconnection.
type SupervisorConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // consecutive failed connections before giving up; 0 = unlimited
}

// Supervisor keeps a feed connection alive by running a fresh Adapter after
// every failure.
type Supervisor struct {
	opts     Options
	cfg      SupervisorConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	counters *counters

	current atomic.Pointer[Adapter]
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(opts Options, cfg SupervisorConfig, m *metrics.Metrics, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}

	return &Supervisor{
		opts:     opts,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		counters: &counters{},
	}
}

// State returns the state of the current connection.
func (s *Supervisor) State() State {
	if a := s.current.Load(); a != nil {
		return a.State()
	}
	return Disconnected
}

// Stats returns counters accumulated across all connections.
func (s *Supervisor) Stats() Stats {
	return s.counters.snapshot()
}

// Run connects and reconnects until ctx is cancelled (returns nil) or
// MaxAttempts consecutive connections fail.
func (s *Supervisor) Run(ctx context.Context, handle Handler) error {
	b := backoff.New(s.cfg.BaseDelay, s.cfg.MaxDelay)
	failures := 0

	for {
		a := newAdapter(s.opts, s.metrics, s.logger, s.counters)
		s.current.Store(a)

		err := a.Run(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}

		if a.reachedStreaming() {
			b.Reset()
			failures = 0
		}
		failures++

		if s.cfg.MaxAttempts > 0 && failures >= s.cfg.MaxAttempts {
			return fmt.Errorf("feed: giving up after %d consecutive failures: %w", failures, err)
		}

		wait := b.Next()
		s.logger.Warn("feed disconnected, reconnecting",
			"error", err,
			"attempt", failures,
			"wait", wait,
		)
		s.metrics.FeedReconnect()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
