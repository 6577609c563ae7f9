// schemactl checks schema registry connectivity and registers the ticker schema.
//
// Usage:
//
//	schemactl [-config path] [-subject name] check
//	schemactl [-config path] [-subject name] register
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/ticker-relay/internal/codec"
	"github.com/rickgao/ticker-relay/internal/config"
	"github.com/rickgao/ticker-relay/internal/logging"
)

// subjectLister is implemented by both registry kinds.
type subjectLister interface {
	Subjects(ctx context.Context) ([]string, error)
}

func main() {
	configPath := flag.String("config", "configs/relay.example.yaml", "path to config file")
	subject := flag.String("subject", "", "registry subject (default <topic>-value)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] check|register\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "check"
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.SchemaRegistry.URL == "" {
		fmt.Fprintln(os.Stderr, "schema_registry.url is required")
		os.Exit(1)
	}
	if *subject != "" {
		cfg.SchemaRegistry.Subject = *subject
	}

	logger := logging.New(cfg.Logging, "role", "schemactl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.SchemaRegistry.Timeout)
	defer cancel()

	registry, err := codec.NewRegistry(codec.RegistryConfig{
		URL:      cfg.SchemaRegistry.URL,
		Username: cfg.SchemaRegistry.Username,
		Password: cfg.SchemaRegistry.Password,
		Timeout:  cfg.SchemaRegistry.Timeout,
	})
	if err != nil {
		logger.Error("failed to create registry client", "error", err)
		os.Exit(1)
	}

	switch cmd {
	case "check":
		err = check(ctx, registry, logger)
	case "register":
		err = register(ctx, registry, cfg.RegistrySubject(), logger)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd+" failed", "registry", cfg.SchemaRegistry.URL, "error", err)
		os.Exit(1)
	}
}

func check(ctx context.Context, registry codec.Registry, logger *slog.Logger) error {
	lister, ok := registry.(subjectLister)
	if !ok {
		return fmt.Errorf("registry %T cannot list subjects", registry)
	}
	subjects, err := lister.Subjects(ctx)
	if err != nil {
		return err
	}
	logger.Info("connected to schema registry", "subjects", subjects)
	return nil
}

func register(ctx context.Context, registry codec.Registry, subject string, logger *slog.Logger) error {
	schema, err := codec.TickerSchema()
	if err != nil {
		return err
	}
	id, err := registry.Register(ctx, subject, schema)
	if err != nil {
		return err
	}
	logger.Info("schema registered", "subject", subject, "schema_id", id)
	fmt.Println(id)
	return nil
}
