package sink

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/ticker-relay/internal/model"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{"2024-01-01T00:00:00Z", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2022-10-19T23:28:22.061769Z", time.Date(2022, 10, 19, 23, 28, 22, 61769000, time.UTC), true},
		{"2024-01-01T02:00:00+02:00", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-01-01", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := parseTime(tt.in)
		if ok != tt.wantOK {
			t.Errorf("parseTime(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && (!got.Equal(tt.want) || got.Location() != time.UTC) {
			t.Errorf("parseTime(%q) = %v, want %v UTC", tt.in, got, tt.want)
		}
	}
}

func TestDecimalArg(t *testing.T) {
	tests := []struct {
		name      string
		in        *string
		want      string // "" means NULL
		wantValid bool
	}{
		{"absent", nil, "", true},
		{"price", model.String("1285.22"), "1285.22", true},
		{"many places", model.String("0.00056482"), "0.00056482", true},
		{"large volume", model.String("9788783.60117027"), "9788783.60117027", true},
		{"garbage", model.String("12.3.4"), "", false},
		{"empty", model.String(""), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, valid := decimalArg(tt.in)
			if valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", valid, tt.wantValid)
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("decimalArg = %v, want nil", got)
				}
				return
			}
			d, ok := got.(decimal.Decimal)
			if !ok {
				t.Fatalf("decimalArg type = %T, want decimal.Decimal", got)
			}
			if d.String() != tt.want {
				t.Errorf("decimalArg = %s, want %s", d.String(), tt.want)
			}
		})
	}
}

func TestRowArgs(t *testing.T) {
	fallback := time.Date(2030, 5, 5, 12, 0, 0, 0, time.UTC)

	e := model.TickerEvent{
		Type:      "ticker",
		ProductID: "BTC-USD",
		Sequence:  model.Int64(9),
		Price:     model.String("42000.5"),
		BestBid:   model.String("bad"),
		Side:      model.String("sell"),
		Time:      "2024-01-01T00:00:00Z",
		TradeID:   model.Int64(77),
	}

	args, issues := rowArgs(e, fallback)
	if len(args) != len(insertColumns) {
		t.Fatalf("len(args) = %d, want %d", len(args), len(insertColumns))
	}
	if issues.timeDefaulted {
		t.Error("timeDefaulted = true, want false")
	}
	if len(issues.invalidDecimals) != 1 || issues.invalidDecimals[0] != "best_bid" {
		t.Errorf("invalidDecimals = %v, want [best_bid]", issues.invalidDecimals)
	}

	byCol := make(map[string]any, len(args))
	for i, c := range insertColumns {
		byCol[c] = args[i]
	}
	if byCol["product_id"] != "BTC-USD" {
		t.Errorf("product_id = %v", byCol["product_id"])
	}
	if ts := byCol["time"].(time.Time); !ts.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", ts)
	}
	if byCol["sequence"] != int64(9) || byCol["trade_id"] != int64(77) {
		t.Errorf("sequence/trade_id = %v/%v", byCol["sequence"], byCol["trade_id"])
	}
	if byCol["best_bid"] != nil || byCol["open_24h"] != nil || byCol["last_size"] != nil {
		t.Errorf("expected NULL for invalid and absent decimals")
	}
	if byCol["side"] != "sell" {
		t.Errorf("side = %v", byCol["side"])
	}
	if byCol["time_defaulted"] != false {
		t.Errorf("time_defaulted = %v, want false", byCol["time_defaulted"])
	}
}

func TestRowArgs_DefaultsTime(t *testing.T) {
	fallback := time.Date(2030, 5, 5, 12, 0, 0, 0, time.FixedZone("X", 3600))

	args, issues := rowArgs(model.TickerEvent{Type: "ticker", ProductID: "ETH-USD", Time: "not-a-time"}, fallback)
	if !issues.timeDefaulted {
		t.Fatal("timeDefaulted = false, want true")
	}
	ts := args[1].(time.Time)
	if !ts.Equal(fallback) || ts.Location() != time.UTC {
		t.Errorf("time = %v, want %v in UTC", ts, fallback)
	}
	if args[len(args)-1] != true {
		t.Errorf("time_defaulted arg = %v, want true", args[len(args)-1])
	}
}

func TestMaxBatchRows(t *testing.T) {
	if MaxBatchRows*len(insertColumns) > maxBindParams {
		t.Errorf("MaxBatchRows %d exceeds parameter limit", MaxBatchRows)
	}
	if (MaxBatchRows+1)*len(insertColumns) <= maxBindParams {
		t.Errorf("MaxBatchRows %d is not the largest fitting batch", MaxBatchRows)
	}
}
