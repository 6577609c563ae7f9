package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/rickgao/ticker-relay/internal/errs"
)

func init() {
	RegisterDriver("sarama", newSaramaConsumer)
}

// saramaConsumer bridges a sarama consumer group onto Poll/Commit. Claims push
// messages into a channel drained by Poll.
type saramaConsumer struct {
	group  sarama.ConsumerGroup
	topics []string
	logger *slog.Logger

	msgs   chan *sarama.ConsumerMessage
	errCh  chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	sess sarama.ConsumerGroupSession
}

func newSaramaConsumer(cfg Config, ccfg ConsumerConfig, logger *slog.Logger) (Consumer, error) {
	if len(ccfg.Topics) == 0 {
		return nil, errors.New("kafka: no topics to consume")
	}

	sc, err := consumerSaramaConfig(cfg, ccfg)
	if err != nil {
		return nil, err
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, ccfg.GroupID, sc)
	if err != nil {
		return nil, &errs.ConnectionError{Component: "kafka", Err: fmt.Errorf("create consumer group: %w", err)}
	}

	c := newSaramaGroupConsumer(group, ccfg.Topics, sc.ChannelBufferSize, logger)
	c.start()
	logger.Info("consumer created",
		"brokers", cfg.Brokers,
		"group", ccfg.GroupID,
		"topics", ccfg.Topics,
	)
	return c, nil
}

func newSaramaGroupConsumer(group sarama.ConsumerGroup, topics []string, buffer int, logger *slog.Logger) *saramaConsumer {
	if buffer <= 0 {
		buffer = 256
	}
	return &saramaConsumer{
		group:  group,
		topics: topics,
		logger: logger,
		msgs:   make(chan *sarama.ConsumerMessage, buffer),
		errCh:  make(chan error, 1),
	}
}

func (c *saramaConsumer) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.report(err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.report(err)
		}
	}()
}

func (c *saramaConsumer) report(err error) {
	select {
	case c.errCh <- err:
	default:
		c.logger.Warn("consumer group error", "error", err)
	}
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *saramaConsumer) Setup(sess sarama.ConsumerGroupSession) error {
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	c.logger.Info("partitions assigned", "claims", sess.Claims(), "generation", sess.GenerationID())
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *saramaConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
	c.logger.Info("partitions revoked")
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *saramaConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case c.msgs <- msg:
			case <-sess.Context().Done():
				return nil
			}
		case <-sess.Context().Done():
			return nil
		}
	}
}

// Poll implements Consumer.
func (c *saramaConsumer) Poll(ctx context.Context, timeout time.Duration) (*Record, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-c.msgs:
		return &Record{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Timestamp: msg.Timestamp,
		}, nil
	case err := <-c.errCh:
		return nil, &errs.ConnectionError{Component: "kafka", Err: err}
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Commit implements Consumer. Offsets are marked as offset+1 and committed
// synchronously on the current session.
//
// sarama's session Commit does not return an error. Offset commit failures
// surface on the group's error channel, so any error already forwarded from
// it when Commit finishes is returned. One that arrives later fails the next Poll.
func (c *saramaConsumer) Commit(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return &errs.ConnectionError{Component: "kafka", Err: ErrNoSession}
	}

	for tp, off := range highestOffsets(records) {
		sess.MarkOffset(tp.topic, tp.partition, off+1, "")
	}
	sess.Commit()

	select {
	case err := <-c.errCh:
		return &errs.ConnectionError{Component: "kafka", Err: fmt.Errorf("commit offsets: %w", err)}
	default:
		return nil
	}
}

// Close implements Consumer.
func (c *saramaConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.group.Close()
	c.wg.Wait()
	return err
}
