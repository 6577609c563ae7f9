// producer streams the exchange ticker feed into Kafka as Avro records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ticker-relay/internal/broker"
	"github.com/rickgao/ticker-relay/internal/codec"
	"github.com/rickgao/ticker-relay/internal/config"
	"github.com/rickgao/ticker-relay/internal/feed"
	"github.com/rickgao/ticker-relay/internal/logging"
	"github.com/rickgao/ticker-relay/internal/metrics"
	"github.com/rickgao/ticker-relay/internal/model"
	"github.com/rickgao/ticker-relay/internal/profiling"
	"github.com/rickgao/ticker-relay/internal/publisher"
	"github.com/rickgao/ticker-relay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.example.yaml", "path to config file")
	printConfig := flag.Bool("print-config", false, "print the effective config and exit")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *printConfig {
		out, err := cfg.Dump()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to print config: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	logger := logging.New(cfg.Logging, "role", "producer", "instance_id", cfg.Instance.ID)
	logger.Info("starting producer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("producer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("producer stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	stopProfiling, err := profiling.Start(cfg.Profiling, "producer", logger)
	if err != nil {
		return err
	}
	defer stopProfiling()

	m := metrics.New("producer")

	registry, err := codec.NewRegistry(codec.RegistryConfig{
		URL:      cfg.SchemaRegistry.URL,
		Username: cfg.SchemaRegistry.Username,
		Password: cfg.SchemaRegistry.Password,
		Timeout:  cfg.SchemaRegistry.Timeout,
	})
	if err != nil {
		return err
	}

	regCtx, cancel := context.WithTimeout(ctx, cfg.SchemaRegistry.Timeout)
	cdc, err := codec.New(regCtx, registry, cfg.RegistrySubject())
	cancel()
	if err != nil {
		return err
	}
	logger.Info("schema registered", "subject", cfg.RegistrySubject(), "schema_id", cdc.SchemaID())

	k := cfg.Kafka
	producer, err := broker.NewProducer(brokerConfig(k), broker.ProducerConfig{
		RequiredAcks:    k.Producer.RequiredAcks(),
		Compression:     k.Producer.Compression,
		Idempotent:      k.Producer.Idempotent,
		RetryMax:        k.Producer.RetryMax,
		RetryBackoff:    k.Producer.RetryBackoff,
		MaxMessageBytes: k.Producer.MaxMessageBytes,
		Linger:          k.Producer.Linger,
		QueueSize:       k.Producer.QueueSize,
		EnqueueTimeout:  k.Producer.EnqueueTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}

	pub := publisher.New(publisher.Config{Topic: k.Topic}, cdc, producer, m, logger)

	f := cfg.Feed
	sup := feed.NewSupervisor(feed.Options{
		URL:              f.URL,
		ProductIDs:       f.ProductIDs,
		Channels:         f.Channels,
		HandshakeTimeout: f.HandshakeTimeout,
		WriteTimeout:     f.WriteTimeout,
		PingInterval:     f.PingInterval,
		ReadTimeout:      f.ReadTimeout,
	}, feed.SupervisorConfig{
		BaseDelay:   f.ReconnectBaseDelay,
		MaxDelay:    f.ReconnectMaxDelay,
		MaxAttempts: f.MaxReconnects,
	}, m, logger)

	server := metrics.NewServer(
		fmt.Sprintf(":%d", cfg.Metrics.Port),
		cfg.Metrics.Path,
		m,
		map[string]metrics.HealthCheck{
			"feed": func(context.Context) (any, error) {
				state := sup.State()
				detail := map[string]any{"state": state.String(), "stats": sup.Stats()}
				if state != feed.Streaming {
					return detail, fmt.Errorf("feed is %s", state)
				}
				return detail, nil
			},
			"publisher": func(context.Context) (any, error) {
				return pub.Stats(), nil
			},
		},
		logger,
	)

	handle := func(ctx context.Context, event model.TickerEvent) {
		if err := pub.Publish(ctx, event); err != nil {
			logger.Warn("event not published",
				"product_id", event.ProductID,
				"time", event.Time,
				"error", err,
			)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return sup.Run(gctx, handle) })

	logger.Info("producer running",
		"feed", f.URL,
		"products", f.ProductIDs,
		"topic", k.Topic,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	runErr := g.Wait()

	// The feed has stopped; wait for outstanding deliveries.
	start := time.Now()
	closeErr := pub.Close()
	logger.Info("producer flushed", "took", time.Since(start))

	return errors.Join(runErr, closeErr)
}

func brokerConfig(k config.KafkaConfig) broker.Config {
	return broker.Config{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		Version:      k.Version,
		TLS:          k.TLS,
		SASLUser:     k.SASLUser,
		SASLPassword: k.SASLPassword,
	}
}
