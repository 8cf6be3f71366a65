package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CandleInterval is a supported bucket width for OHLCV aggregation.
type CandleInterval struct {
	Name string
	Ms   int64
}

// candleIntervals enumerates the supported interval grid.
var candleIntervals = []CandleInterval{
	{"1m", 60_000},
	{"5m", 300_000},
	{"15m", 900_000},
	{"30m", 1_800_000},
	{"1h", 3_600_000},
	{"4h", 14_400_000},
	{"1d", 86_400_000},
}

// ParseInterval resolves an interval name. Unknown names are rejected with
// the set of supported values.
func ParseInterval(name string) (CandleInterval, error) {
	for _, iv := range candleIntervals {
		if iv.Name == name {
			return iv, nil
		}
	}
	names := make([]string, len(candleIntervals))
	for i, iv := range candleIntervals {
		names[i] = iv.Name
	}
	sort.Strings(names)
	return CandleInterval{}, fmt.Errorf("interval %q (supported: %s): %w",
		name, strings.Join(names, ", "), ErrBadInterval)
}

// BucketStart floors a timestamp onto the interval grid.
func (iv CandleInterval) BucketStart(t time.Time) int64 {
	ms := t.UnixMilli()
	return (ms / iv.Ms) * iv.Ms
}

// OrderCandle is one OHLCV bucket over order creation prices: market intent
// rather than execution. Volume sums initial amounts of all orders created
// in the bucket regardless of later status.
type OrderCandle struct {
	BucketStart int64 // ms since epoch, inclusive
	Open        int64
	High        int64
	Low         int64
	Close       int64
	Volume      int64
	BuyCount    int
	SellCount   int
}

// TradeCandle is one OHLCV bucket over trade execution prices.
type TradeCandle struct {
	BucketStart int64
	Open        int64
	High        int64
	Low         int64
	Close       int64
	Volume      int64
	TotalValue  int64
	TradeCount  int
}
