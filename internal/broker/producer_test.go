package broker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/ticker-relay/internal/errs"
)

func mockConfig() *sarama.Config {
	sc := mocks.NewTestConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	return sc
}

type deliveryLog struct {
	mu  sync.Mutex
	got []Delivery
}

func (l *deliveryLog) record(d Delivery) {
	l.mu.Lock()
	l.got = append(l.got, d)
	l.mu.Unlock()
}

func (l *deliveryLog) all() []Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Delivery(nil), l.got...)
}

func TestProducer_DeliverySuccess(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	mp.ExpectInputAndSucceed()
	mp.ExpectInputAndSucceed()

	p := newProducer(mp, 1<<20, time.Second, nil)
	log := &deliveryLog{}

	require.NoError(t, p.Produce(context.Background(), "coinbase_market_streaming", "ETH-USD", []byte("a"), log.record))
	require.NoError(t, p.Produce(context.Background(), "coinbase_market_streaming", "BTC-USD", []byte("b"), log.record))
	require.NoError(t, p.Close())

	got := log.all()
	require.Len(t, got, 2)
	for _, d := range got {
		assert.NoError(t, d.Err)
		assert.Equal(t, "coinbase_market_streaming", d.Topic)
	}
	keys := []string{got[0].Key, got[1].Key}
	assert.ElementsMatch(t, []string{"ETH-USD", "BTC-USD"}, keys)
}

func TestProducer_DeliveryFailure(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	mp.ExpectInputAndFail(sarama.ErrNotLeaderForPartition)
	mp.ExpectInputAndSucceed()

	p := newProducer(mp, 1<<20, time.Second, nil)
	log := &deliveryLog{}

	require.NoError(t, p.Produce(context.Background(), "t", "ETH-USD", []byte("a"), log.record))
	require.NoError(t, p.Produce(context.Background(), "t", "BTC-USD", []byte("b"), log.record))
	require.NoError(t, p.Close())

	got := log.all()
	require.Len(t, got, 2)

	var failed, ok int
	for _, d := range got {
		if d.Err == nil {
			ok++
			continue
		}
		failed++
		var de *errs.DeliveryError
		require.ErrorAs(t, d.Err, &de)
		assert.Equal(t, "ETH-USD", de.Key)
		assert.ErrorIs(t, d.Err, sarama.ErrNotLeaderForPartition)
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, ok)
}

func TestProducer_MessageTooLarge(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	p := newProducer(mp, 10, time.Second, nil)

	called := false
	err := p.Produce(context.Background(), "t", "key", []byte(strings.Repeat("x", 20)), func(Delivery) { called = true })
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	require.NoError(t, p.Close())
	assert.False(t, called)
}

func TestProducer_MessageTooLargeWithRecordOverhead(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	p := newProducer(mp, 64, time.Second, nil)

	// Payload fits the limit but the encoded record does not.
	value := []byte(strings.Repeat("x", 56))
	err := p.Produce(context.Background(), "t", "ETH-USD", value, func(Delivery) {
		t.Error("delivery callback for rejected record")
	})
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	require.NoError(t, p.Close())
}

// stuckProducer never drains its input.
type stuckProducer struct {
	sarama.AsyncProducer
	input     chan *sarama.ProducerMessage
	successes chan *sarama.ProducerMessage
	errors    chan *sarama.ProducerError
	once      sync.Once
}

func newStuckProducer() *stuckProducer {
	return &stuckProducer{
		input:     make(chan *sarama.ProducerMessage),
		successes: make(chan *sarama.ProducerMessage),
		errors:    make(chan *sarama.ProducerError),
	}
}

func (s *stuckProducer) Input() chan<- *sarama.ProducerMessage     { return s.input }
func (s *stuckProducer) Successes() <-chan *sarama.ProducerMessage { return s.successes }
func (s *stuckProducer) Errors() <-chan *sarama.ProducerError      { return s.errors }
func (s *stuckProducer) AsyncClose() {
	s.once.Do(func() {
		close(s.successes)
		close(s.errors)
	})
}

func TestProducer_QueueFull(t *testing.T) {
	p := newProducer(newStuckProducer(), 0, 20*time.Millisecond, nil)

	start := time.Now()
	err := p.Produce(context.Background(), "t", "k", []byte("v"), func(Delivery) {
		t.Error("callback must not fire for a rejected record")
	})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, p.Close())
}

func TestProducer_BlocksUntilContextDone(t *testing.T) {
	p := newProducer(newStuckProducer(), 0, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Produce(ctx, "t", "k", []byte("v"), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, p.Close())
}

func TestProducer_ProduceAfterClose(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mockConfig())
	p := newProducer(mp, 0, time.Second, nil)
	require.NoError(t, p.Close())

	err := p.Produce(context.Background(), "t", "k", []byte("v"), nil)
	assert.True(t, errors.Is(err, ErrClosed))
	require.NoError(t, p.Close())
}

func TestCompressionCodec(t *testing.T) {
	tests := []struct {
		name    string
		want    sarama.CompressionCodec
		wantErr bool
	}{
		{"", sarama.CompressionNone, false},
		{"none", sarama.CompressionNone, false},
		{"GZIP", sarama.CompressionGZIP, false},
		{"snappy", sarama.CompressionSnappy, false},
		{"lz4", sarama.CompressionLZ4, false},
		{"zstd", sarama.CompressionZSTD, false},
		{"brotli", sarama.CompressionNone, true},
	}

	for _, tt := range tests {
		got, err := compressionCodec(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("compressionCodec(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("compressionCodec(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProducerSaramaConfig(t *testing.T) {
	sc, err := producerSaramaConfig(
		Config{ClientID: "relay-producer", Version: "3.6.0", SASLUser: "u", SASLPassword: "p"},
		ProducerConfig{RequiredAcks: -1, Compression: "snappy", RetryMax: 7, MaxMessageBytes: 2048, Idempotent: true},
	)
	require.NoError(t, err)

	assert.Equal(t, "relay-producer", sc.ClientID)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionSnappy, sc.Producer.Compression)
	assert.Equal(t, 7, sc.Producer.Retry.Max)
	assert.Equal(t, 2048, sc.Producer.MaxMessageBytes)
	assert.True(t, sc.Producer.Return.Successes)
	assert.True(t, sc.Producer.Idempotent)
	assert.Equal(t, 1, sc.Net.MaxOpenRequests)
	assert.True(t, sc.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypePlaintext), sc.Net.SASL.Mechanism)

	_, err = producerSaramaConfig(Config{Version: "not-a-version"}, ProducerConfig{})
	assert.Error(t, err)
}

func TestConsumerSaramaConfig(t *testing.T) {
	sc, err := consumerSaramaConfig(Config{}, ConsumerConfig{StartOffset: "earliest", SessionTimeout: 45 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, sarama.OffsetOldest, sc.Consumer.Offsets.Initial)
	assert.False(t, sc.Consumer.Offsets.AutoCommit.Enable)
	assert.Equal(t, 45*time.Second, sc.Consumer.Group.Session.Timeout)
	assert.Equal(t, 15*time.Second, sc.Consumer.Group.Heartbeat.Interval)

	sc, err = consumerSaramaConfig(Config{}, ConsumerConfig{StartOffset: "latest"})
	require.NoError(t, err)
	assert.Equal(t, sarama.OffsetNewest, sc.Consumer.Offsets.Initial)
}
