// Package config handles configuration loading for the relay processes.
//
// A YAML file is read with ${VAR} substitution, then overlaid with RELAY_*
// environment variables, where a double underscore separates sections:
//
//	RELAY_KAFKA__BROKERS=broker-1:9092,broker-2:9092
//	RELAY_PIPELINE__BATCH_SIZE=500
//
// Variables from a .env file in the working directory are loaded first.
package config

import "time"

// Config is the root configuration shared by the producer and the consumer.
type Config struct {
	Instance       InstanceConfig       `koanf:"instance" yaml:"instance"`
	Feed           FeedConfig           `koanf:"feed" yaml:"feed"`
	Kafka          KafkaConfig          `koanf:"kafka" yaml:"kafka"`
	SchemaRegistry SchemaRegistryConfig `koanf:"schema_registry" yaml:"schema_registry"`
	Database       DBConfig             `koanf:"database" yaml:"database"`
	Pipeline       PipelineConfig       `koanf:"pipeline" yaml:"pipeline"`
	Metrics        MetricsConfig        `koanf:"metrics" yaml:"metrics"`
	Logging        LoggingConfig        `koanf:"logging" yaml:"logging"`
	Profiling      ProfilingConfig      `koanf:"profiling" yaml:"profiling"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `koanf:"id" yaml:"id"`
}

// FeedConfig holds exchange websocket settings.
type FeedConfig struct {
	URL                string        `koanf:"url" yaml:"url"`
	ProductIDs         []string      `koanf:"product_ids" yaml:"product_ids"`
	Channels           []string      `koanf:"channels" yaml:"channels"`
	HandshakeTimeout   time.Duration `koanf:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	PingInterval       time.Duration `koanf:"ping_interval" yaml:"ping_interval"`
	ReadTimeout        time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	ReconnectBaseDelay time.Duration `koanf:"reconnect_base_delay" yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `koanf:"reconnect_max_delay" yaml:"reconnect_max_delay"`
	MaxReconnects      int           `koanf:"max_reconnect_attempts" yaml:"max_reconnect_attempts"` // 0 = unlimited
}

// KafkaConfig holds broker connection settings and per-role tuning.
type KafkaConfig struct {
	Brokers      []string       `koanf:"brokers" yaml:"brokers"`
	Topic        string         `koanf:"topic" yaml:"topic"`
	ClientID     string         `koanf:"client_id" yaml:"client_id"`
	Version      string         `koanf:"version" yaml:"version"`
	TLS          bool           `koanf:"tls" yaml:"tls"`
	SASLUser     string         `koanf:"sasl_user" yaml:"sasl_user"`
	SASLPassword string         `koanf:"sasl_password" yaml:"sasl_password"`
	Producer     ProducerConfig `koanf:"producer" yaml:"producer"`
	Consumer     ConsumerConfig `koanf:"consumer" yaml:"consumer"`
}

// ProducerConfig tunes the Kafka producer.
type ProducerConfig struct {
	Acks            string        `koanf:"acks" yaml:"acks"` // "all", "1" or "0"
	Compression     string        `koanf:"compression" yaml:"compression"`
	Idempotent      bool          `koanf:"idempotent" yaml:"idempotent"`
	RetryMax        int           `koanf:"retry_max" yaml:"retry_max"`
	RetryBackoff    time.Duration `koanf:"retry_backoff" yaml:"retry_backoff"`
	MaxMessageBytes int           `koanf:"max_message_bytes" yaml:"max_message_bytes"`
	Linger          time.Duration `koanf:"linger" yaml:"linger"`
	QueueSize       int           `koanf:"queue_size" yaml:"queue_size"`
	EnqueueTimeout  time.Duration `koanf:"enqueue_timeout" yaml:"enqueue_timeout"`
}

// ConsumerConfig tunes the Kafka consumer.
type ConsumerConfig struct {
	Driver         string        `koanf:"driver" yaml:"driver"`
	GroupID        string        `koanf:"group_id" yaml:"group_id"`
	StartOffset    string        `koanf:"start_offset" yaml:"start_offset"`
	SessionTimeout time.Duration `koanf:"session_timeout" yaml:"session_timeout"`
	MaxBytes       int           `koanf:"max_bytes" yaml:"max_bytes"`
	QueueSize      int           `koanf:"queue_size" yaml:"queue_size"`
}

// SchemaRegistryConfig holds schema registry settings.
type SchemaRegistryConfig struct {
	URL      string        `koanf:"url" yaml:"url"`
	Subject  string        `koanf:"subject" yaml:"subject"` // default "<topic>-value"
	Username string        `koanf:"username" yaml:"username"`
	Password string        `koanf:"password" yaml:"password"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
}

// DBConfig holds the ticker store connection.
type DBConfig struct {
	Host       string `koanf:"host" yaml:"host"`
	Port       int    `koanf:"port" yaml:"port"`
	Name       string `koanf:"name" yaml:"name"`
	User       string `koanf:"user" yaml:"user"`
	Password   string `koanf:"password" yaml:"password"`
	SSLMode    string `koanf:"ssl_mode" yaml:"ssl_mode"`
	MaxConns   int    `koanf:"max_conns" yaml:"max_conns"`
	MinConns   int    `koanf:"min_conns" yaml:"min_conns"`
	Table      string `koanf:"table" yaml:"table"`
	Hypertable bool   `koanf:"hypertable" yaml:"hypertable"`
}

// PipelineConfig holds consumer batching settings.
type PipelineConfig struct {
	BatchSize        int           `koanf:"batch_size" yaml:"batch_size"`
	PollTimeout      time.Duration `koanf:"poll_timeout" yaml:"poll_timeout"`
	FlushInterval    time.Duration `koanf:"flush_interval" yaml:"flush_interval"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxRestarts      int           `koanf:"max_restarts" yaml:"max_restarts"` // -1 = unlimited
	RestartBaseDelay time.Duration `koanf:"restart_base_delay" yaml:"restart_base_delay"`
	RestartMaxDelay  time.Duration `koanf:"restart_max_delay" yaml:"restart_max_delay"`
}

// MetricsConfig holds Prometheus and health endpoint settings.
type MetricsConfig struct {
	Port int    `koanf:"port" yaml:"port"`
	Path string `koanf:"path" yaml:"path"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`   // debug, info, warn, error
	Format string `koanf:"format" yaml:"format"` // text or json
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress   string `koanf:"server_address" yaml:"server_address"`
	ApplicationName string `koanf:"application_name" yaml:"application_name"`
}

// RequiredAcks maps Acks onto the Kafka protocol value.
func (p ProducerConfig) RequiredAcks() int16 {
	switch p.Acks {
	case "0":
		return 0
	case "1":
		return 1
	default:
		return -1
	}
}

// Restarts returns MaxRestarts in the form the pipeline expects, where 0
// means unlimited.
func (p PipelineConfig) Restarts() int {
	if p.MaxRestarts < 0 {
		return 0
	}
	return p.MaxRestarts
}

// RegistrySubject returns the configured subject or the topic's value subject.
func (c *Config) RegistrySubject() string {
	if c.SchemaRegistry.Subject != "" {
		return c.SchemaRegistry.Subject
	}
	return c.Kafka.Topic + "-value"
}

const redacted = "*****"

// Redacted returns a copy with secrets masked, for printing.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.Kafka.SASLPassword)
	mask(&c.SchemaRegistry.Password)
	mask(&c.Database.Password)
	return c
}
