// Package candle folds orders and trades into sparse OHLCV buckets. Two
// series exist per asset: order candles chart market intent (creation
// prices), trade candles chart execution prices.
package candle

import (
	"sort"

	"github.com/brixmarket/syncengine/internal/domain"
)

// AggregateOrders buckets orders by creation time. Input must be in chain
// order; open and close respect that order within a bucket. Volume counts
// every created order's initial amount regardless of its later status.
func AggregateOrders(orders []domain.Order, iv domain.CandleInterval) []domain.OrderCandle {
	buckets := make(map[int64]*domain.OrderCandle)
	for _, o := range orders {
		start := iv.BucketStart(o.BlockTime)
		c, ok := buckets[start]
		if !ok {
			c = &domain.OrderCandle{
				BucketStart: start,
				Open:        o.PriceTicks,
				High:        o.PriceTicks,
				Low:         o.PriceTicks,
			}
			buckets[start] = c
		}
		if o.PriceTicks > c.High {
			c.High = o.PriceTicks
		}
		if o.PriceTicks < c.Low {
			c.Low = o.PriceTicks
		}
		c.Close = o.PriceTicks
		c.Volume += o.InitialAmount
		if o.Side == domain.OrderSideBuy {
			c.BuyCount++
		} else {
			c.SellCount++
		}
	}
	return sortedOrderCandles(buckets)
}

// AggregateTrades buckets trades by execution time. Input must be in chain
// order.
func AggregateTrades(trades []domain.Trade, iv domain.CandleInterval) []domain.TradeCandle {
	buckets := make(map[int64]*domain.TradeCandle)
	for _, t := range trades {
		start := iv.BucketStart(t.BlockTime)
		c, ok := buckets[start]
		if !ok {
			c = &domain.TradeCandle{
				BucketStart: start,
				Open:        t.PriceTicks,
				High:        t.PriceTicks,
				Low:         t.PriceTicks,
			}
			buckets[start] = c
		}
		if t.PriceTicks > c.High {
			c.High = t.PriceTicks
		}
		if t.PriceTicks < c.Low {
			c.Low = t.PriceTicks
		}
		c.Close = t.PriceTicks
		c.Volume += t.Amount
		c.TotalValue += t.TotalValue
		c.TradeCount++
	}
	return sortedTradeCandles(buckets)
}

func sortedOrderCandles(buckets map[int64]*domain.OrderCandle) []domain.OrderCandle {
	out := make([]domain.OrderCandle, 0, len(buckets))
	for _, c := range buckets {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart < out[j].BucketStart })
	return out
}

func sortedTradeCandles(buckets map[int64]*domain.TradeCandle) []domain.TradeCandle {
	out := make([]domain.TradeCandle, 0, len(buckets))
	for _, c := range buckets {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart < out[j].BucketStart })
	return out
}
