package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rickgao/ticker-relay/internal/broker"
	"github.com/rickgao/ticker-relay/internal/sink"
)

// Validate checks the settings shared by every process.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if len(c.Feed.ProductIDs) == 0 {
		return errors.New("feed.product_ids must not be empty")
	}
	if c.Feed.ReconnectMaxDelay < c.Feed.ReconnectBaseDelay {
		return fmt.Errorf("feed.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Feed.ReconnectMaxDelay, c.Feed.ReconnectBaseDelay)
	}
	if c.Feed.MaxReconnects < 0 {
		return errors.New("feed.max_reconnect_attempts must be >= 0")
	}

	if err := c.Kafka.validate(); err != nil {
		return err
	}

	if c.SchemaRegistry.URL == "" {
		return errors.New("schema_registry.url is required")
	}

	p := c.Pipeline
	if p.BatchSize < 1 {
		return errors.New("pipeline.batch_size must be >= 1")
	}
	if p.BatchSize > sink.MaxBatchRows {
		return fmt.Errorf("pipeline.batch_size must be <= %d, got %d", sink.MaxBatchRows, p.BatchSize)
	}
	if p.FlushInterval < 0 {
		return errors.New("pipeline.flush_interval must be >= 0")
	}
	if p.MaxRestarts < -1 {
		return errors.New("pipeline.max_restarts must be >= -1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func (k *KafkaConfig) validate() error {
	if len(k.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if k.Topic == "" {
		return errors.New("kafka.topic is required")
	}
	if !slices.Contains([]string{"all", "-1", "1", "0"}, k.Producer.Acks) {
		return fmt.Errorf("kafka.producer.acks must be all, 1 or 0, got %q", k.Producer.Acks)
	}
	if k.Producer.Idempotent && k.Producer.RequiredAcks() != -1 {
		return errors.New("kafka.producer.idempotent requires acks=all")
	}
	if k.Producer.MaxMessageBytes < 1 {
		return errors.New("kafka.producer.max_message_bytes must be >= 1")
	}
	if k.Producer.EnqueueTimeout < 0 {
		return errors.New("kafka.producer.enqueue_timeout must be >= 0")
	}
	if !slices.Contains(broker.Drivers(), k.Consumer.Driver) {
		return fmt.Errorf("kafka.consumer.driver %q is not one of %v", k.Consumer.Driver, broker.Drivers())
	}
	if k.Consumer.StartOffset != "earliest" && k.Consumer.StartOffset != "latest" {
		return fmt.Errorf("kafka.consumer.start_offset must be earliest or latest, got %q", k.Consumer.StartOffset)
	}
	if k.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}
	return nil
}

// ValidateDatabase checks the store settings. Only the consumer needs them.
func (c *Config) ValidateDatabase() error {
	db := c.Database
	const prefix = "database"
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if db.Table == "" {
		return fmt.Errorf("%s.table is required", prefix)
	}
	return nil
}
