package sink

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/ticker-relay/internal/model"
)

// insertColumns are written for every row, in order.
var insertColumns = []string{
	"product_id", "time", "type", "sequence",
	"price", "open_24h", "volume_24h", "low_24h", "high_24h", "volume_30d",
	"best_bid", "best_ask", "side", "trade_id", "last_size", "time_defaulted",
}

// maxBindParams is the PostgreSQL limit on parameters in one statement.
const maxBindParams = 65535

// MaxBatchRows is the largest batch that fits in one INSERT statement.
var MaxBatchRows = maxBindParams / len(insertColumns)

// rowIssues collects degraded values in one row.
type rowIssues struct {
	timeDefaulted   bool
	invalidDecimals []string // field names
}

// parseTime parses an RFC 3339 timestamp and normalizes it to UTC.
func parseTime(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// decimalArg converts a decimal string into a NUMERIC bind value. Absent values
// bind NULL; unparseable values bind NULL and report false.
func decimalArg(v *string) (any, bool) {
	if v == nil {
		return nil, true
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return nil, false
	}
	return d, true
}

func int64Arg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringArg(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// rowArgs returns the bind values for one event, in insertColumns order.
// fallback is used when the event time cannot be parsed.
func rowArgs(e model.TickerEvent, fallback time.Time) ([]any, rowIssues) {
	var issues rowIssues

	ts, ok := parseTime(e.Time)
	if !ok {
		ts = fallback.UTC()
		issues.timeDefaulted = true
	}

	decimals := []struct {
		name  string
		value *string
	}{
		{"price", e.Price},
		{"open_24h", e.Open24h},
		{"volume_24h", e.Volume24h},
		{"low_24h", e.Low24h},
		{"high_24h", e.High24h},
		{"volume_30d", e.Volume30d},
		{"best_bid", e.BestBid},
		{"best_ask", e.BestAsk},
	}
	dec := make([]any, len(decimals))
	for i, d := range decimals {
		arg, valid := decimalArg(d.value)
		if !valid {
			issues.invalidDecimals = append(issues.invalidDecimals, d.name)
		}
		dec[i] = arg
	}

	lastSize, valid := decimalArg(e.LastSize)
	if !valid {
		issues.invalidDecimals = append(issues.invalidDecimals, "last_size")
	}

	args := make([]any, 0, len(insertColumns))
	args = append(args, e.ProductID, ts, e.Type, int64Arg(e.Sequence))
	args = append(args, dec...)
	args = append(args, stringArg(e.Side), int64Arg(e.TradeID), lastSize, issues.timeDefaulted)
	return args, issues
}
