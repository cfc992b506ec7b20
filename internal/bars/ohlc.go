package bars

import (
	"math"
	"time"
)

// OHLCBar is an open/high/low/close/volume aggregate over a set of ticks.
// It is mutated in place while open and becomes immutable once sealed.
//
// Invariants while open and after sealing:
//
//	High >= max(Open, Close)
//	Low  <= min(Open, Close)
//	High >= Low
//
// For minute bars Timestamp is the start of the calendar-minute bucket.
type OHLCBar struct {
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    uint64
	Timestamp time.Time
}

func newOHLCBar(symbol string, price float64, volume uint64, ts time.Time) OHLCBar {
	return OHLCBar{
		Symbol:    symbol,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    volume,
		Timestamp: ts,
	}
}

// applyTick extends the bar with one more trade.
func (b *OHLCBar) applyTick(price float64, volume uint64) {
	b.High = math.Max(b.High, price)
	b.Low = math.Min(b.Low, price)
	b.Close = price
	b.Volume += volume
}

// Range is the full price excursion of the bar.
func (b OHLCBar) Range() float64 { return b.High - b.Low }

// Body is the absolute open-to-close distance.
func (b OHLCBar) Body() float64 { return math.Abs(b.Close - b.Open) }

// IsBullish reports whether the bar closed above its open.
func (b OHLCBar) IsBullish() bool { return b.Close > b.Open }
