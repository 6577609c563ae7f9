package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/rickgao/ticker-relay/internal/errs"
)

func init() {
	RegisterDriver("kafkago", newKafkaGoConsumer)
}

// messageReader is the subset of *kafka.Reader used by kafkaGoConsumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaGoConsumer struct {
	r      messageReader
	logger *slog.Logger
}

func newKafkaGoConsumer(cfg Config, ccfg ConsumerConfig, logger *slog.Logger) (Consumer, error) {
	if len(ccfg.Topics) == 0 {
		return nil, errors.New("kafka: no topics to consume")
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		ClientID:  cfg.ClientID,
	}
	if cfg.TLS {
		dialer.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.SASLUser != "" {
		dialer.SASLMechanism = plain.Mechanism{Username: cfg.SASLUser, Password: cfg.SASLPassword}
	}

	startOffset := kafka.FirstOffset
	if ccfg.StartOffset == "latest" {
		startOffset = kafka.LastOffset
	}

	maxBytes := ccfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10e6
	}

	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     ccfg.GroupID,
		GroupTopics: ccfg.Topics,
		Dialer:      dialer,
		MinBytes:    1,
		MaxBytes:    maxBytes,
		StartOffset: startOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
	if ccfg.SessionTimeout > 0 {
		rc.SessionTimeout = ccfg.SessionTimeout
		rc.HeartbeatInterval = ccfg.SessionTimeout / 3
	}
	if ccfg.QueueSize > 0 {
		rc.QueueCapacity = ccfg.QueueSize
	}
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reader config: %w", err)
	}

	logger.Info("consumer created",
		"brokers", cfg.Brokers,
		"group", ccfg.GroupID,
		"topics", ccfg.Topics,
	)
	return &kafkaGoConsumer{r: kafka.NewReader(rc), logger: logger}, nil
}

// Poll implements Consumer.
func (c *kafkaGoConsumer) Poll(ctx context.Context, timeout time.Duration) (*Record, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := c.r.FetchMessage(pctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, &errs.ConnectionError{Component: "kafka", Err: fmt.Errorf("fetch: %w", err)}
	}

	return &Record{
		Topic:     msg.Topic,
		Partition: int32(msg.Partition),
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Time,
	}, nil
}

// Commit implements Consumer. kafka-go commits offset+1 of each message given.
func (c *kafkaGoConsumer) Commit(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	highest := highestOffsets(records)
	msgs := make([]kafka.Message, 0, len(highest))
	for tp, off := range highest {
		msgs = append(msgs, kafka.Message{Topic: tp.topic, Partition: int(tp.partition), Offset: off})
	}

	if err := c.r.CommitMessages(ctx, msgs...); err != nil {
		return &errs.ConnectionError{Component: "kafka", Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// Close implements Consumer.
func (c *kafkaGoConsumer) Close() error {
	return c.r.Close()
}
