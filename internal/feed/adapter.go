package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/rickgao/ticker-relay/internal/errs"
	"github.com/rickgao/ticker-relay/internal/metrics"
	"github.com/rickgao/ticker-relay/internal/model"
)

// ErrAlreadyRun is returned when Run is called twice on the same Adapter.
var ErrAlreadyRun = errors.New("adapter already run")

// Handler receives every ticker frame in arrival order on the read goroutine.
type Handler func(ctx context.Context, event model.TickerEvent)

type counters struct {
	connects       atomic.Int64
	frames         atomic.Int64
	events         atomic.Int64
	parseErrors    atomic.Int64
	exchangeErrors atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Connects:       c.connects.Load(),
		Frames:         c.frames.Load(),
		Events:         c.events.Load(),
		ParseErrors:    c.parseErrors.Load(),
		ExchangeErrors: c.exchangeErrors.Load(),
	}
}

// errorFrame is sent by the exchange for rejected subscriptions and similar.
type errorFrame struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// Adapter owns a single websocket connection. Use a new Adapter per connection.
type Adapter struct {
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	counters *counters

	mu       sync.Mutex
	state    State
	lastSeen time.Time
	streamed bool
	used     bool
}

// New creates an Adapter. Zero durations in opts fall back to DefaultOptions.
func New(opts Options, m *metrics.Metrics, logger *slog.Logger) *Adapter {
	return newAdapter(opts, m, logger, &counters{})
}

func newAdapter(opts Options, m *metrics.Metrics, logger *slog.Logger, c *counters) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}

	return &Adapter{
		opts:     opts,
		logger:   logger.With("component", "feed"),
		metrics:  m,
		counters: c,
	}
}

// State returns the current connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Stats returns cumulative counters.
func (a *Adapter) Stats() Stats {
	return a.counters.snapshot()
}

// reachedStreaming reports whether the connection ever delivered a frame.
func (a *Adapter) reachedStreaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streamed
}

// Run connects, subscribes and hands frames to handle until the connection
// fails or ctx is cancelled.
//
// On cancellation a normal-closure frame is sent and ctx.Err() is returned.
// Any other termination returns *errs.ConnectionError.
func (a *Adapter) Run(ctx context.Context, handle Handler) error {
	a.mu.Lock()
	if a.used {
		a.mu.Unlock()
		return ErrAlreadyRun
	}
	a.used = true
	a.mu.Unlock()

	a.transition(Connecting, nil)

	dialer := websocket.Dialer{
		HandshakeTimeout: a.opts.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, a.opts.URL, nil)
	if err != nil {
		return a.fail(ctx, fmt.Errorf("dial %s: %w", a.opts.URL, err))
	}
	defer conn.Close()

	a.counters.connects.Add(1)
	a.touch()

	// Server pings and pongs to our pings both count as liveness.
	conn.SetPingHandler(func(data string) error {
		a.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		a.touch()
		return nil
	})

	if err := a.subscribe(conn); err != nil {
		a.logger.Error("subscribe failed", "url", a.opts.URL, "error", err)
		return a.fail(ctx, err)
	}
	a.transition(Subscribed, nil)
	a.logger.Info("subscribed",
		"url", a.opts.URL,
		"products", a.opts.ProductIDs,
		"channels", a.opts.Channels,
	)

	var stale atomic.Bool
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.heartbeatLoop(ctx, conn, done, &stale)
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	// Frames already read are handed on even if ctx is cancelled meanwhile.
	handlerCtx := context.WithoutCancel(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				a.transition(Disconnected, nil)
				return ctx.Err()
			}
			switch {
			case stale.Load():
				err = ErrStaleConnection
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				err = fmt.Errorf("%w: %v", ErrClosedByServer, err)
			default:
				err = fmt.Errorf("read: %w", err)
			}
			return a.fail(ctx, err)
		}

		a.touch()
		if a.State() == Subscribed {
			a.transition(Streaming, nil)
		}
		a.dispatch(handlerCtx, data, handle)
	}
}

func (a *Adapter) subscribe(conn *websocket.Conn) error {
	payload, err := sonic.ConfigFastest.Marshal(subscribeFrame{
		Type:       "subscribe",
		ProductIDs: a.opts.ProductIDs,
		Channels:   a.opts.Channels,
	})
	if err != nil {
		return fmt.Errorf("encode subscribe: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	return nil
}

// dispatch parses one frame and hands ticker events to handle. Parse failures
// and exchange error frames are counted and dropped.
func (a *Adapter) dispatch(ctx context.Context, data []byte, handle Handler) {
	a.counters.frames.Add(1)

	var event model.TickerEvent
	if err := sonic.ConfigFastest.Unmarshal(data, &event); err != nil {
		a.counters.parseErrors.Add(1)
		a.metrics.FeedFrame(metrics.FrameParseError)
		a.logger.Warn("dropping unparseable frame", "bytes", len(data), "error", err)
		return
	}

	if event.Type == "error" {
		var ef errorFrame
		_ = sonic.ConfigFastest.Unmarshal(data, &ef)
		a.counters.exchangeErrors.Add(1)
		a.metrics.FeedFrame(metrics.FrameExchangeError)
		a.logger.Error("exchange error frame", "message", ef.Message, "reason", ef.Reason)
		return
	}

	a.counters.events.Add(1)
	a.metrics.FeedFrame(metrics.FrameEvent)
	handle(ctx, event)
}

// heartbeatLoop pings the server, detects stale connections and closes the
// socket on cancellation.
func (a *Adapter) heartbeatLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}, stale *atomic.Bool) {
	ticker := time.NewTicker(a.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			deadline := time.Now().Add(a.opts.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				a.logger.Debug("failed to send close frame", "error", err)
			}
			conn.Close()
			return

		case <-ticker.C:
			deadline := time.Now().Add(a.opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				a.logger.Debug("failed to send ping", "error", err)
			}

			a.mu.Lock()
			last := a.lastSeen
			a.mu.Unlock()

			if time.Since(last) > a.opts.ReadTimeout {
				a.logger.Warn("connection stale",
					"last_seen", last,
					"timeout", a.opts.ReadTimeout,
				)
				stale.Store(true)
				conn.Close()
				return
			}
		}
	}
}

func (a *Adapter) touch() {
	a.mu.Lock()
	a.lastSeen = time.Now()
	a.mu.Unlock()
}

// fail moves to Disconnected. Cancellation wins over the transport error.
func (a *Adapter) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		a.transition(Disconnected, nil)
		return ctx.Err()
	}
	cerr := &errs.ConnectionError{Component: "feed", Err: err}
	a.transition(Disconnected, cerr)
	return cerr
}

func (a *Adapter) transition(to State, err error) {
	a.mu.Lock()
	from := a.state
	a.state = to
	if to == Streaming {
		a.streamed = true
	}
	a.mu.Unlock()

	if from == to {
		return
	}

	a.metrics.FeedState(int(to))
	a.logger.Debug("state change", "from", from.String(), "to", to.String())
	if a.opts.OnTransition != nil {
		a.opts.OnTransition(Transition{From: from, To: to, Err: err})
	}
}
