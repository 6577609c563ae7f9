package broker

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrQueueFull       = errors.New("producer queue full")
	ErrMessageTooLarge = errors.New("message exceeds max message bytes")
	ErrClosed          = errors.New("client closed")
	ErrNoSession       = errors.New("no active consumer group session")
)

// Record is one consumed message and its position.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Delivery is the outcome of one produced record. Err is a *errs.DeliveryError
// on failure.
type Delivery struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       string
	Err       error
}

// DeliveryFunc is called exactly once per accepted record, off the calling goroutine.
type DeliveryFunc func(Delivery)

// Consumer reads records from subscribed topics with manual commits.
type Consumer interface {
	// Poll waits up to timeout for the next record. It returns (nil, nil) when
	// none arrived in time.
	Poll(ctx context.Context, timeout time.Duration) (*Record, error)

	// Commit stores offset+1 of the highest record per partition.
	Commit(ctx context.Context, records []Record) error

	// Close leaves the group and releases the client.
	Close() error
}

// Config holds connection settings shared by producers and consumers.
type Config struct {
	Brokers      []string
	ClientID     string
	Version      string // sarama version string, e.g. "3.6.0"
	TLS          bool
	SASLUser     string
	SASLPassword string
}

// ProducerConfig tunes the producer.
type ProducerConfig struct {
	RequiredAcks    int16 // 0, 1, -1 (all)
	Compression     string
	Idempotent      bool
	RetryMax        int
	RetryBackoff    time.Duration
	MaxMessageBytes int
	Linger          time.Duration
	QueueSize       int
	EnqueueTimeout  time.Duration // 0 = block until ctx is done
}

// ConsumerConfig tunes a consumer.
type ConsumerConfig struct {
	Driver         string
	GroupID        string
	Topics         []string
	StartOffset    string // "earliest" or "latest"
	SessionTimeout time.Duration
	MaxBytes       int
	QueueSize      int
}

// topicPartition identifies a partition.
type topicPartition struct {
	topic     string
	partition int32
}

// highestOffsets returns the highest offset per partition in records.
func highestOffsets(records []Record) map[topicPartition]int64 {
	out := make(map[topicPartition]int64)
	for _, r := range records {
		tp := topicPartition{r.Topic, r.Partition}
		if cur, ok := out[tp]; !ok || r.Offset > cur {
			out[tp] = r.Offset
		}
	}
	return out
}
