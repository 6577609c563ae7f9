package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rickgao/ticker-relay/internal/broker"
	"github.com/rickgao/ticker-relay/internal/errs"
	"github.com/rickgao/ticker-relay/internal/model"
	"github.com/rickgao/ticker-relay/internal/sink"
)

// opLog records persist, commit and close calls in order.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, fmt.Sprintf(format, args...))
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type fakeConsumer struct {
	mu        sync.Mutex
	queue     []broker.Record
	committed []broker.Record
	closed    bool

	// blockWhenEmpty makes Poll wait for ctx instead of returning nil.
	blockWhenEmpty bool
	// onDrained runs once, the first time Poll finds the queue empty.
	onDrained func()
	drained   bool

	commitErr error
	log       *opLog
}

func newFakeConsumer(log *opLog, values ...string) *fakeConsumer {
	c := &fakeConsumer{log: log}
	for i, v := range values {
		c.queue = append(c.queue, broker.Record{
			Topic:     "coinbase_market_streaming",
			Partition: 0,
			Offset:    int64(i),
			Key:       []byte(v),
			Value:     []byte(v),
		})
	}
	return c
}

func (c *fakeConsumer) Poll(ctx context.Context, _ time.Duration) (*broker.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.queue) > 0 {
		rec := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		return &rec, nil
	}
	hook := c.onDrained
	if c.drained {
		hook = nil
	}
	c.drained = true
	block := c.blockWhenEmpty
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Millisecond):
	}
	return nil, nil
}

func (c *fakeConsumer) Commit(_ context.Context, records []broker.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return c.commitErr
	}
	c.committed = append(c.committed, records...)
	if c.log != nil {
		c.log.add("commit:%d", len(records))
	}
	return nil
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.log != nil {
		c.log.add("close")
	}
	return nil
}

func (c *fakeConsumer) Committed() []broker.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broker.Record(nil), c.committed...)
}

func (c *fakeConsumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDecoder treats the payload as a product id. "bad" is undecodable and
// "down" simulates an unreachable schema registry.
type fakeDecoder struct{}

func (fakeDecoder) Decode(_ context.Context, data []byte) (model.TickerEvent, error) {
	switch string(data) {
	case "bad":
		return model.TickerEvent{}, &errs.DecodeError{Err: errors.New("payload too short")}
	case "down":
		return model.TickerEvent{}, &errs.ConnectionError{Component: "registry", Err: errors.New("connection refused")}
	}
	return model.TickerEvent{
		Type:      "ticker",
		ProductID: string(data),
		Time:      "2024-01-01T00:00:00Z",
	}, nil
}

type fakeSink struct {
	mu      sync.Mutex
	calls   int
	events  []model.TickerEvent
	failOn  map[int]bool // 1-based call numbers that fail
	failAll bool
	log     *opLog
}

func (s *fakeSink) Persist(_ context.Context, events []model.TickerEvent) (sink.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.log != nil {
		s.log.add("persist:%d", len(events))
	}
	if s.failAll || s.failOn[s.calls] {
		return sink.Result{}, &errs.PersistenceError{Op: "insert", Err: errors.New("relation does not exist")}
	}
	s.events = append(s.events, events...)
	return sink.Result{Rows: len(events), Inserted: len(events)}, nil
}

func (s *fakeSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSink) Events() []model.TickerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TickerEvent(nil), s.events...)
}

func values(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return out
}
