package collect

import (
	"sort"
	"time"
)

// Candle is one aggregation window for a symbol.
type Candle struct {
	Symbol     string
	Interval   time.Duration
	StartTime  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int
}

// Candles maintains the current window per symbol. Trades are folded in
// arrival order; an instance is owned by a single invocation, which
// single-flight dispatch makes safe without locking.
type Candles struct {
	interval time.Duration
	current  map[string]*Candle
}

// NewCandles creates an aggregator with the given window size.
func NewCandles(interval time.Duration) *Candles {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Candles{interval: interval, current: make(map[string]*Candle)}
}

// Apply folds one trade into the symbol's window. When the trade lands
// in a different bucket than the open window, the finished candle is
// returned for flushing and a new window starts.
func (c *Candles) Apply(symbol string, ts time.Time, price, size float64) *Candle {
	bucket := bucketStart(ts, c.interval)
	cur := c.current[symbol]
	if cur == nil {
		c.current[symbol] = newCandle(symbol, c.interval, bucket, price, size)
		return nil
	}
	if cur.StartTime.Equal(bucket) {
		cur.fold(price, size)
		return nil
	}

	finished := cur
	c.current[symbol] = newCandle(symbol, c.interval, bucket, price, size)
	return finished
}

// FlushAll drains every open window, sorted by symbol.
func (c *Candles) FlushAll() []*Candle {
	out := make([]*Candle, 0, len(c.current))
	for _, cd := range c.current {
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	c.current = make(map[string]*Candle)
	return out
}

func newCandle(symbol string, interval time.Duration, bucket time.Time, price, size float64) *Candle {
	return &Candle{
		Symbol:     symbol,
		Interval:   interval,
		StartTime:  bucket,
		Open:       price,
		High:       price,
		Low:        price,
		Close:      price,
		Volume:     size,
		TradeCount: 1,
	}
}

func (cd *Candle) fold(price, size float64) {
	if price > cd.High {
		cd.High = price
	}
	if price < cd.Low {
		cd.Low = price
	}
	cd.Close = price
	cd.Volume += size
	cd.TradeCount++
}

// bucketStart floors ts onto the interval grid, in UTC.
func bucketStart(ts time.Time, interval time.Duration) time.Time {
	ms := interval.Milliseconds()
	return time.UnixMilli((ts.UnixMilli() / ms) * ms).UTC()
}
