package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
kafka:
  brokers: ["localhost:9092"]
schema_registry:
  url: http://localhost:8081
database:
  host: localhost
  name: market
  user: relay
  password: relaypass
`

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: relay-1
feed:
  url: wss://ws-feed.example.com
  product_ids: [BTC-USD]
  ping_interval: 15s
kafka:
  brokers: ["broker-1:9092", "broker-2:9092"]
  topic: tickers
  producer:
    acks: "1"
    linger: 20ms
  consumer:
    driver: sarama
pipeline:
  batch_size: 500
  flush_interval: 2s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "relay-1" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "relay-1")
	}
	if cfg.Feed.PingInterval != 15*time.Second {
		t.Errorf("Feed.PingInterval = %v, want %v", cfg.Feed.PingInterval, 15*time.Second)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("Kafka.Brokers = %v, want [broker-1:9092 broker-2:9092]", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Producer.Linger != 20*time.Millisecond {
		t.Errorf("Kafka.Producer.Linger = %v, want %v", cfg.Kafka.Producer.Linger, 20*time.Millisecond)
	}
	if cfg.Kafka.Consumer.Driver != "sarama" {
		t.Errorf("Kafka.Consumer.Driver = %q, want %q", cfg.Kafka.Consumer.Driver, "sarama")
	}
	if cfg.Pipeline.BatchSize != 500 {
		t.Errorf("Pipeline.BatchSize = %d, want %d", cfg.Pipeline.BatchSize, 500)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  host: localhost
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("RELAY_KAFKA__BROKERS", "env-1:9092,env-2:9092")
	t.Setenv("RELAY_PIPELINE__BATCH_SIZE", "250")
	t.Setenv("RELAY_KAFKA__CONSUMER__GROUP_ID", "from-env")

	path := writeTempFile(t, minimalYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "env-1:9092" {
		t.Errorf("Kafka.Brokers = %v, want [env-1:9092 env-2:9092]", cfg.Kafka.Brokers)
	}
	if cfg.Pipeline.BatchSize != 250 {
		t.Errorf("Pipeline.BatchSize = %d, want %d", cfg.Pipeline.BatchSize, 250)
	}
	if cfg.Kafka.Consumer.GroupID != "from-env" {
		t.Errorf("Kafka.Consumer.GroupID = %q, want %q", cfg.Kafka.Consumer.GroupID, "from-env")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, minimalYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Feed.URL != DefaultFeedURL {
		t.Errorf("Feed.URL = %q, want default %q", cfg.Feed.URL, DefaultFeedURL)
	}
	if len(cfg.Feed.ProductIDs) != len(DefaultProductIDs) {
		t.Errorf("Feed.ProductIDs = %v, want %v", cfg.Feed.ProductIDs, DefaultProductIDs)
	}
	if cfg.Kafka.Topic != DefaultTopic {
		t.Errorf("Kafka.Topic = %q, want default %q", cfg.Kafka.Topic, DefaultTopic)
	}
	if cfg.Kafka.Consumer.SessionTimeout != DefaultSessionTimeout {
		t.Errorf("Kafka.Consumer.SessionTimeout = %v, want default %v", cfg.Kafka.Consumer.SessionTimeout, DefaultSessionTimeout)
	}
	if cfg.Pipeline.BatchSize != DefaultBatchSize {
		t.Errorf("Pipeline.BatchSize = %d, want default %d", cfg.Pipeline.BatchSize, DefaultBatchSize)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.Table != DefaultTable {
		t.Errorf("Database.Table = %q, want default %q", cfg.Database.Table, DefaultTable)
	}
	if got := cfg.RegistrySubject(); got != "coinbase_market_streaming-value" {
		t.Errorf("RegistrySubject() = %q, want %q", got, "coinbase_market_streaming-value")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:    "missing brokers",
			modify:  func(c *Config) { c.Kafka.Brokers = nil },
			wantErr: "kafka.brokers is required",
		},
		{
			name:    "missing registry",
			modify:  func(c *Config) { c.SchemaRegistry.URL = "" },
			wantErr: "schema_registry.url is required",
		},
		{
			name:    "batch too large for one statement",
			modify:  func(c *Config) { c.Pipeline.BatchSize = 100_000 },
			wantErr: "pipeline.batch_size must be <=",
		},
		{
			name:    "unknown driver",
			modify:  func(c *Config) { c.Kafka.Consumer.Driver = "franz" },
			wantErr: "kafka.consumer.driver",
		},
		{
			name: "idempotent without acks all",
			modify: func(c *Config) {
				c.Kafka.Producer.Idempotent = true
				c.Kafka.Producer.Acks = "1"
			},
			wantErr: "idempotent requires acks=all",
		},
		{
			name:    "bad start offset",
			modify:  func(c *Config) { c.Kafka.Consumer.StartOffset = "middle" },
			wantErr: "start_offset",
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "invalid metrics port",
			modify:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port",
		},
		{
			name: "reconnect delays inverted",
			modify: func(c *Config) {
				c.Feed.ReconnectBaseDelay = time.Minute
				c.Feed.ReconnectMaxDelay = time.Second
			},
			wantErr: "reconnect_max_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*DBConfig)
		wantErr string
	}{
		{"valid", func(db *DBConfig) {}, ""},
		{"missing host", func(db *DBConfig) { db.Host = "" }, "database.host is required"},
		{"missing name", func(db *DBConfig) { db.Name = "" }, "database.name is required"},
		{"min exceeds max", func(db *DBConfig) { db.MinConns = 20 }, "cannot exceed max_conns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg.Database)

			err := cfg.ValidateDatabase()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateDatabase() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateDatabase() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.SASLPassword = "kafka-secret"

	r := cfg.Redacted()
	if r.Database.Password != redacted {
		t.Errorf("Database.Password = %q, want %q", r.Database.Password, redacted)
	}
	if r.Kafka.SASLPassword != redacted {
		t.Errorf("Kafka.SASLPassword = %q, want %q", r.Kafka.SASLPassword, redacted)
	}
	if r.SchemaRegistry.Password != "" {
		t.Errorf("SchemaRegistry.Password = %q, want empty", r.SchemaRegistry.Password)
	}
	if cfg.Database.Password != "relaypass" {
		t.Error("Redacted() modified the original config")
	}

	out, err := cfg.Dump()
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if strings.Contains(string(out), "relaypass") {
		t.Error("Dump() leaked the database password")
	}
}

func TestRequiredAcks(t *testing.T) {
	tests := []struct {
		acks string
		want int16
	}{
		{"all", -1},
		{"-1", -1},
		{"1", 1},
		{"0", 0},
	}
	for _, tt := range tests {
		if got := (ProducerConfig{Acks: tt.acks}).RequiredAcks(); got != tt.want {
			t.Errorf("RequiredAcks(%q) = %d, want %d", tt.acks, got, tt.want)
		}
	}
}

func TestPipelineRestarts(t *testing.T) {
	if got := (PipelineConfig{MaxRestarts: -1}).Restarts(); got != 0 {
		t.Errorf("Restarts() = %d, want 0 (unlimited)", got)
	}
	if got := (PipelineConfig{MaxRestarts: 3}).Restarts(); got != 3 {
		t.Errorf("Restarts() = %d, want 3", got)
	}
}

func validConfig() *Config {
	cfg := &Config{
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}},
		SchemaRegistry: SchemaRegistryConfig{
			URL: "http://localhost:8081",
		},
		Database: DBConfig{
			Host:     "localhost",
			Name:     "market",
			User:     "relay",
			Password: "relaypass",
		},
	}
	cfg.applyDefaults()
	return cfg
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
