package broker

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
)

// saramaConfig maps shared settings onto a sarama config.
func saramaConfig(cfg Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()

	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("parse kafka version: %w", err)
		}
		sc.Version = ver
	}
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	if cfg.TLS {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPassword
	}
	return sc, nil
}

func producerSaramaConfig(cfg Config, pcfg ProducerConfig) (*sarama.Config, error) {
	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	sc.Producer.RequiredAcks = sarama.RequiredAcks(pcfg.RequiredAcks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	codec, err := compressionCodec(pcfg.Compression)
	if err != nil {
		return nil, err
	}
	sc.Producer.Compression = codec

	if pcfg.RetryMax > 0 {
		sc.Producer.Retry.Max = pcfg.RetryMax
	}
	if pcfg.RetryBackoff > 0 {
		sc.Producer.Retry.Backoff = pcfg.RetryBackoff
	}
	if pcfg.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = pcfg.MaxMessageBytes
	}
	if pcfg.Linger > 0 {
		sc.Producer.Flush.Frequency = pcfg.Linger
	}
	if pcfg.QueueSize > 0 {
		sc.ChannelBufferSize = pcfg.QueueSize
	}
	if pcfg.Idempotent {
		sc.Producer.Idempotent = true
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Net.MaxOpenRequests = 1
		if !sc.Version.IsAtLeast(sarama.V0_11_0_0) {
			sc.Version = sarama.V0_11_0_0
		}
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}
	return sc, nil
}

func consumerSaramaConfig(cfg Config, ccfg ConsumerConfig) (*sarama.Config, error) {
	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = false
	switch ccfg.StartOffset {
	case "latest":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	if ccfg.SessionTimeout > 0 {
		sc.Consumer.Group.Session.Timeout = ccfg.SessionTimeout
		sc.Consumer.Group.Heartbeat.Interval = ccfg.SessionTimeout / 3
	}
	if ccfg.MaxBytes > 0 {
		sc.Consumer.Fetch.Max = int32(ccfg.MaxBytes)
	}
	if ccfg.QueueSize > 0 {
		sc.ChannelBufferSize = ccfg.QueueSize
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer config: %w", err)
	}
	return sc, nil
}

func compressionCodec(name string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("unknown compression %q", name)
	}
}
