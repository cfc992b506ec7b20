package bars

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Tick represents a single trade observation delivered by the market-data feed.
// Ticks are immutable once constructed and must arrive in non-decreasing
// timestamp order per symbol.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    uint64
	Timestamp time.Time
}

var (
	// ErrInvalidPrice is returned when a tick carries a NaN, infinite or
	// non-positive price. Upstream filters should have dropped it already.
	ErrInvalidPrice = errors.New("invalid tick price")

	// ErrOutOfOrderTick is returned when a tick is older than the bucket or
	// bar currently open for its symbol. The tick is not applied.
	ErrOutOfOrderTick = errors.New("tick out of order")

	// ErrInvalidTickSize is returned when a caller passes a non-positive
	// tick size. This is a configuration error, not a data issue.
	ErrInvalidTickSize = errors.New("tick size must be positive")
)

// Validate rejects prices that would corrupt OHLC invariants.
func (t Tick) Validate() error {
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return fmt.Errorf("%w: symbol=%s price=%v", ErrInvalidPrice, t.Symbol, t.Price)
	}
	return nil
}
