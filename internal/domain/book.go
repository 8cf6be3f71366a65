package domain

import "time"

// BookLevel aggregates all OPEN/PARTIAL orders resting at one price.
type BookLevel struct {
	PriceTicks int64
	Amount     int64 // total remaining amount at this level
	OrderCount int
}

// BookSnapshot is the aggregated orderbook for one asset at call time.
// Bids are sorted descending by price, asks ascending (best first). When a
// side is empty the corresponding best price is nil, as is the spread when
// either side is empty.
type BookSnapshot struct {
	AssetID   string
	Bids      []BookLevel
	Asks      []BookLevel
	BestBid   *int64
	BestAsk   *int64
	Spread    *int64
	Timestamp time.Time
}

// MarketStats summarizes trailing 24-hour trade activity for one asset.
type MarketStats struct {
	AssetID       string
	LastPrice     int64
	Change24h     int64
	High24h       int64
	Low24h        int64
	Volume24h     int64 // token units traded
	Value24h      int64 // counter-asset base units traded
	TradeCount24h int64
	AsOf          time.Time
}
