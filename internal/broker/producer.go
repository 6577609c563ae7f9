package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/rickgao/ticker-relay/internal/errs"
)

const recordBatchVersion = 2

// Producer sends keyed records asynchronously and reports each outcome through
// a per-record callback.
type Producer struct {
	p               sarama.AsyncProducer
	maxMessageBytes int
	enqueueTimeout  time.Duration
	logger          *slog.Logger

	mu     sync.RWMutex
	closed bool

	inflight sync.WaitGroup // one per accepted record
	drainers sync.WaitGroup
}

// NewProducer connects a sarama AsyncProducer.
func NewProducer(cfg Config, pcfg ProducerConfig, logger *slog.Logger) (*Producer, error) {
	sc, err := producerSaramaConfig(cfg, pcfg)
	if err != nil {
		return nil, err
	}

	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, &errs.ConnectionError{Component: "kafka", Err: fmt.Errorf("create producer: %w", err)}
	}
	return newProducer(p, sc.Producer.MaxMessageBytes, pcfg.EnqueueTimeout, logger), nil
}

func newProducer(p sarama.AsyncProducer, maxMessageBytes int, enqueueTimeout time.Duration, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}

	pr := &Producer{
		p:               p,
		maxMessageBytes: maxMessageBytes,
		enqueueTimeout:  enqueueTimeout,
		logger:          logger.With("component", "producer"),
	}

	pr.drainers.Add(2)
	go pr.successLoop()
	go pr.errorLoop()
	return pr
}

// Produce enqueues one record. It blocks while the send queue is full, up to
// the enqueue timeout (ErrQueueFull) or ctx cancellation. onDelivery is called
// exactly once if and only if Produce returns nil.
func (p *Producer) Produce(ctx context.Context, topic, key string, value []byte, onDelivery DeliveryFunc) error {
	msg := &sarama.ProducerMessage{
		Topic:    topic,
		Key:      sarama.StringEncoder(key),
		Value:    sarama.ByteEncoder(value),
		Metadata: onDelivery,
	}
	// Sized as a v2 record, the format producers are pinned to.
	if size := msg.ByteSize(recordBatchVersion); p.maxMessageBytes > 0 && size > p.maxMessageBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, size, p.maxMessageBytes)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	p.inflight.Add(1)

	select {
	case p.p.Input() <- msg:
		return nil
	default:
	}

	var expired <-chan time.Time
	if p.enqueueTimeout > 0 {
		timer := time.NewTimer(p.enqueueTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case p.p.Input() <- msg:
		return nil
	case <-expired:
		p.inflight.Done()
		return ErrQueueFull
	case <-ctx.Done():
		p.inflight.Done()
		return ctx.Err()
	}
}

// Close waits for every outstanding delivery callback, then closes the client.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.p.AsyncClose()
	p.drainers.Wait()
	p.inflight.Wait()
	return nil
}

func (p *Producer) successLoop() {
	defer p.drainers.Done()
	for msg := range p.p.Successes() {
		p.deliver(msg, Delivery{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       keyString(msg),
		})
	}
}

func (p *Producer) errorLoop() {
	defer p.drainers.Done()
	for perr := range p.p.Errors() {
		msg := perr.Msg
		key := keyString(msg)
		derr := &errs.DeliveryError{Topic: msg.Topic, Partition: msg.Partition, Key: key, Err: perr.Err}
		p.logger.Warn("delivery failed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"key", key,
			"error", perr.Err,
		)
		p.deliver(msg, Delivery{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    -1,
			Key:       key,
			Err:       derr,
		})
	}
}

func (p *Producer) deliver(msg *sarama.ProducerMessage, d Delivery) {
	defer p.inflight.Done()
	if fn, ok := msg.Metadata.(DeliveryFunc); ok && fn != nil {
		fn(d)
	}
}

func keyString(msg *sarama.ProducerMessage) string {
	if msg.Key == nil {
		return ""
	}
	b, err := msg.Key.Encode()
	if err != nil {
		return ""
	}
	return string(b)
}
