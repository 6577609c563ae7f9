package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no frames or pongs within read timeout)")
	ErrClosedByServer  = errors.New("connection closed by server")
)

// State is the adapter connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Transition is reported on every state change. Err is set when the change was
// caused by a failure.
type Transition struct {
	From State
	To   State
	Err  error
}

// Options configures an Adapter.
type Options struct {
	URL              string
	ProductIDs       []string
	Channels         []string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration // client ping period
	ReadTimeout      time.Duration // max silence before the connection is stale

	// OnTransition is called synchronously on every state change.
	OnTransition func(Transition)
}

// DefaultOptions returns the exchange defaults.
func DefaultOptions() Options {
	return Options{
		URL:              "wss://ws-feed.exchange.coinbase.com",
		ProductIDs:       []string{"ETH-USD", "BTC-USD", "ETH-EUR", "BTC-EUR"},
		Channels:         []string{"ticker"},
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      90 * time.Second,
	}
}

// Stats are cumulative frame counters.
type Stats struct {
	Connects       int64
	Frames         int64
	Events         int64
	ParseErrors    int64
	ExchangeErrors int64
}

// subscribeFrame is the single frame sent after connecting.
type subscribeFrame struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}
