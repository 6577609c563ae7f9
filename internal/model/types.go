package model

import (
	"github.com/rickgao/ticker-relay/internal/errs"
)

// UnknownProductID is the partition key used when a record carries no product_id.
const UnknownProductID = "unknown"

// TickerEvent is one ticker frame from the exchange feed.
//
// (ProductID, Time) is the natural identity used for deduplication in the store.
type TickerEvent struct {
	Type      string  `json:"type" avro:"type"`
	Sequence  *int64  `json:"sequence,omitempty" avro:"sequence"`
	ProductID string  `json:"product_id,omitempty" avro:"product_id"`
	Price     *string `json:"price,omitempty" avro:"price"`
	Open24h   *string `json:"open_24h,omitempty" avro:"open_24h"`
	Volume24h *string `json:"volume_24h,omitempty" avro:"volume_24h"`
	Low24h    *string `json:"low_24h,omitempty" avro:"low_24h"`
	High24h   *string `json:"high_24h,omitempty" avro:"high_24h"`
	Volume30d *string `json:"volume_30d,omitempty" avro:"volume_30d"`
	BestBid   *string `json:"best_bid,omitempty" avro:"best_bid"`
	BestAsk   *string `json:"best_ask,omitempty" avro:"best_ask"`
	Side      *string `json:"side,omitempty" avro:"side"`
	Time      string  `json:"time,omitempty" avro:"time"`
	TradeID   *int64  `json:"trade_id,omitempty" avro:"trade_id"`
	LastSize  *string `json:"last_size,omitempty" avro:"last_size"`
}

// Validate reports the first missing required field.
func (e *TickerEvent) Validate() error {
	if e.Type == "" {
		return &errs.ValidationError{Field: "type"}
	}
	if e.Time == "" {
		return &errs.ValidationError{Field: "time"}
	}
	return nil
}

// PartitionKey returns the product id, or UnknownProductID when it is absent.
func (e *TickerEvent) PartitionKey() string {
	if e.ProductID == "" {
		return UnknownProductID
	}
	return e.ProductID
}

// String returns a pointer to s. Handy for building events in code and tests.
func String(s string) *string { return &s }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
