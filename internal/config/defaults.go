package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL            = "wss://ws-feed.exchange.coinbase.com"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultReadTimeout        = 90 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second

	DefaultTopic           = "coinbase_market_streaming"
	DefaultClientID        = "ticker-relay"
	DefaultAcks            = "all"
	DefaultCompression     = "snappy"
	DefaultRetryMax        = 5
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultMaxMessageBytes = 1_000_000
	DefaultProducerQueue   = 10_000
	DefaultEnqueueTimeout  = 5 * time.Second
	DefaultConsumerDriver  = "kafkago"
	DefaultGroupID         = "ticker-relay-sink"
	DefaultStartOffset     = "earliest"
	DefaultSessionTimeout  = 45 * time.Second

	DefaultRegistryTimeout = 10 * time.Second

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2
	DefaultTable     = "tickers"

	DefaultBatchSize        = 100
	DefaultPollTimeout      = 1 * time.Second
	DefaultFlushInterval    = 5 * time.Second
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMaxRestarts      = 10
	DefaultRestartBaseDelay = 1 * time.Second
	DefaultRestartMaxDelay  = 60 * time.Second

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// DefaultProductIDs are subscribed when feed.product_ids is empty.
var DefaultProductIDs = []string{"ETH-USD", "BTC-USD", "ETH-EUR", "BTC-EUR"}

func (c *Config) applyDefaults() {
	// Feed defaults
	f := &c.Feed
	if f.URL == "" {
		f.URL = DefaultFeedURL
	}
	if len(f.ProductIDs) == 0 {
		f.ProductIDs = append([]string(nil), DefaultProductIDs...)
	}
	if len(f.Channels) == 0 {
		f.Channels = []string{"ticker"}
	}
	if f.HandshakeTimeout == 0 {
		f.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if f.WriteTimeout == 0 {
		f.WriteTimeout = DefaultWriteTimeout
	}
	if f.PingInterval == 0 {
		f.PingInterval = DefaultPingInterval
	}
	if f.ReadTimeout == 0 {
		f.ReadTimeout = DefaultReadTimeout
	}
	if f.ReconnectBaseDelay == 0 {
		f.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if f.ReconnectMaxDelay == 0 {
		f.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Kafka defaults
	k := &c.Kafka
	if k.Topic == "" {
		k.Topic = DefaultTopic
	}
	if k.ClientID == "" {
		k.ClientID = DefaultClientID
	}
	if k.Producer.Acks == "" {
		k.Producer.Acks = DefaultAcks
	}
	if k.Producer.Compression == "" {
		k.Producer.Compression = DefaultCompression
	}
	if k.Producer.RetryMax == 0 {
		k.Producer.RetryMax = DefaultRetryMax
	}
	if k.Producer.RetryBackoff == 0 {
		k.Producer.RetryBackoff = DefaultRetryBackoff
	}
	if k.Producer.MaxMessageBytes == 0 {
		k.Producer.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if k.Producer.QueueSize == 0 {
		k.Producer.QueueSize = DefaultProducerQueue
	}
	if k.Producer.EnqueueTimeout == 0 {
		k.Producer.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if k.Consumer.Driver == "" {
		k.Consumer.Driver = DefaultConsumerDriver
	}
	if k.Consumer.GroupID == "" {
		k.Consumer.GroupID = DefaultGroupID
	}
	if k.Consumer.StartOffset == "" {
		k.Consumer.StartOffset = DefaultStartOffset
	}
	if k.Consumer.SessionTimeout == 0 {
		k.Consumer.SessionTimeout = DefaultSessionTimeout
	}

	if c.SchemaRegistry.Timeout == 0 {
		c.SchemaRegistry.Timeout = DefaultRegistryTimeout
	}

	// Database defaults
	db := &c.Database
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.Table == "" {
		db.Table = DefaultTable
	}

	// Pipeline defaults
	p := &c.Pipeline
	if p.BatchSize == 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.PollTimeout == 0 {
		p.PollTimeout = DefaultPollTimeout
	}
	if p.FlushInterval == 0 {
		p.FlushInterval = DefaultFlushInterval
	}
	if p.ShutdownTimeout == 0 {
		p.ShutdownTimeout = DefaultShutdownTimeout
	}
	if p.MaxRestarts == 0 {
		p.MaxRestarts = DefaultMaxRestarts
	}
	if p.RestartBaseDelay == 0 {
		p.RestartBaseDelay = DefaultRestartBaseDelay
	}
	if p.RestartMaxDelay == 0 {
		p.RestartMaxDelay = DefaultRestartMaxDelay
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Profiling.ApplicationName == "" {
		c.Profiling.ApplicationName = DefaultClientID
	}
}
