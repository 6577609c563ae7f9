// consumer drains the ticker topic into PostgreSQL in batches, committing
// offsets only after each batch is stored.
package main

import (
	"context"
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
	"github.com/rickgao/ticker-relay/internal/database"
	"github.com/rickgao/ticker-relay/internal/logging"
	"github.com/rickgao/ticker-relay/internal/metrics"
	"github.com/rickgao/ticker-relay/internal/pipeline"
	"github.com/rickgao/ticker-relay/internal/profiling"
	"github.com/rickgao/ticker-relay/internal/sink"
	"github.com/rickgao/ticker-relay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.example.yaml", "path to config file")
	printConfig := flag.Bool("print-config", false, "print the effective config and exit")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err == nil {
		err = cfg.ValidateDatabase()
	}
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

	logger := logging.New(cfg.Logging, "role", "consumer", "instance_id", cfg.Instance.ID)
	logger.Info("starting consumer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("consumer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	stopProfiling, err := profiling.Start(cfg.Profiling, "consumer", logger)
	if err != nil {
		return err
	}
	defer stopProfiling()

	m := metrics.New("consumer")

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store := sink.New(pool, sink.Config{
		Table:      cfg.Database.Table,
		Hypertable: cfg.Database.Hypertable,
	}, m, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

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

	k := cfg.Kafka
	bcfg := broker.Config{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		Version:      k.Version,
		TLS:          k.TLS,
		SASLUser:     k.SASLUser,
		SASLPassword: k.SASLPassword,
	}
	ccfg := broker.ConsumerConfig{
		Driver:         k.Consumer.Driver,
		GroupID:        k.Consumer.GroupID,
		Topics:         []string{k.Topic},
		StartOffset:    k.Consumer.StartOffset,
		SessionTimeout: k.Consumer.SessionTimeout,
		MaxBytes:       k.Consumer.MaxBytes,
		QueueSize:      k.Consumer.QueueSize,
	}

	// The first consumer is created up front so a bad broker config fails startup.
	first, err := broker.NewConsumer(bcfg, ccfg, logger)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	newConsumer := func() (broker.Consumer, error) {
		if first != nil {
			c := first
			first = nil
			return c, nil
		}
		return broker.NewConsumer(bcfg, ccfg, logger)
	}

	p := cfg.Pipeline
	sup := pipeline.NewSupervisor(newConsumer, cdc, store, pipeline.Config{
		BatchSize:        p.BatchSize,
		PollTimeout:      p.PollTimeout,
		FlushInterval:    p.FlushInterval,
		ShutdownTimeout:  p.ShutdownTimeout,
		MaxRestarts:      p.Restarts(),
		RestartBaseDelay: p.RestartBaseDelay,
		RestartMaxDelay:  p.RestartMaxDelay,
	}, m, logger)

	server := metrics.NewServer(
		fmt.Sprintf(":%d", cfg.Metrics.Port),
		cfg.Metrics.Path,
		m,
		map[string]metrics.HealthCheck{
			"database": database.HealthCheck(pool, 2*time.Second),
			"pipeline": func(context.Context) (any, error) {
				return map[string]any{"restarts": sup.Restarts(), "stats": sup.Stats()}, nil
			},
			"sink": func(context.Context) (any, error) {
				return store.Stats(), nil
			},
		},
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return sup.Run(gctx) })

	logger.Info("consumer running",
		"topic", k.Topic,
		"group_id", k.Consumer.GroupID,
		"driver", k.Consumer.Driver,
		"batch_size", p.BatchSize,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	return g.Wait()
}
