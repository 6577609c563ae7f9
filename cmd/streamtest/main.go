// streamtest connects to the ticker feed and prints events to the console,
// checking that each one survives an Avro round trip.
// Usage: go run ./cmd/streamtest --config configs/relay.example.yaml -count 20
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bytedance/sonic"

	"github.com/rickgao/ticker-relay/internal/codec"
	"github.com/rickgao/ticker-relay/internal/config"
	"github.com/rickgao/ticker-relay/internal/feed"
	"github.com/rickgao/ticker-relay/internal/logging"
	"github.com/rickgao/ticker-relay/internal/model"
)

func main() {
	configPath := flag.String("config", "configs/relay.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	count := flag.Int64("count", 0, "stop after this many events (0 = run until interrupted)")
	flag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Logging.Level = "debug"
	logger := logging.New(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, stopAfter := context.WithCancel(ctx)
	defer stopAfter()

	// Local registry: only the encoding is under test, not the registry.
	cdc, err := codec.New(ctx, codec.NewMemoryRegistry(), cfg.RegistrySubject())
	if err != nil {
		logger.Error("failed to create codec", "error", err)
		os.Exit(1)
	}

	sup := feed.NewSupervisor(feed.Options{
		URL:              cfg.Feed.URL,
		ProductIDs:       cfg.Feed.ProductIDs,
		Channels:         cfg.Feed.Channels,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		WriteTimeout:     cfg.Feed.WriteTimeout,
		PingInterval:     cfg.Feed.PingInterval,
		ReadTimeout:      cfg.Feed.ReadTimeout,
		OnTransition: func(t feed.Transition) {
			logger.Info("feed transition", "from", t.From.String(), "to", t.To.String(), "error", t.Err)
		},
	}, feed.SupervisorConfig{
		BaseDelay:   cfg.Feed.ReconnectBaseDelay,
		MaxDelay:    cfg.Feed.ReconnectMaxDelay,
		MaxAttempts: 3,
	}, nil, logger)

	var seen, mismatched atomic.Int64
	handle := func(_ context.Context, e model.TickerEvent) {
		if err := e.Validate(); err != nil {
			logger.Debug("skipping non-ticker frame", "type", e.Type, "error", err)
			return
		}
		n := seen.Add(1)
		printEvent(e, *verbose)

		if err := roundTrip(ctx, cdc, e); err != nil {
			mismatched.Add(1)
			logger.Warn("avro round trip failed", "product_id", e.ProductID, "time", e.Time, "error", err)
		}
		if *count > 0 && n >= *count {
			stopAfter()
		}
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := sup.Stats()
				logger.Info("stats",
					"state", sup.State().String(),
					"connects", s.Connects,
					"frames", s.Frames,
					"events", s.Events,
					"parse_errors", s.ParseErrors,
					"exchange_errors", s.ExchangeErrors,
					"round_trip_failures", mismatched.Load(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "feed", cfg.Feed.URL, "products", cfg.Feed.ProductIDs)

	if err := sup.Run(ctx, handle); err != nil {
		logger.Error("feed stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete", "events", seen.Load(), "round_trip_failures", mismatched.Load())
	if mismatched.Load() > 0 {
		os.Exit(1)
	}
}

func roundTrip(ctx context.Context, cdc *codec.Codec, e model.TickerEvent) error {
	data, err := cdc.Encode(e)
	if err != nil {
		return err
	}
	got, err := cdc.Decode(ctx, data)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(got, e) {
		return errors.New("decoded event differs from original")
	}
	return nil
}

func printEvent(e model.TickerEvent, verbose bool) {
	if verbose {
		data, _ := sonic.ConfigStd.MarshalIndent(e, "", "  ")
		fmt.Printf("[TICKER] %s\n", data)
		return
	}
	fmt.Printf("[TICKER] product=%s price=%s bid=%s ask=%s side=%s time=%s\n",
		e.ProductID, deref(e.Price), deref(e.BestBid), deref(e.BestAsk), deref(e.Side), e.Time)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
