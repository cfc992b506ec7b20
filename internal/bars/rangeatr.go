package bars

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// bootstrapThresholdTicks is the range threshold used while a symbol has
// fewer than two completed bars and its ATR is therefore undefined.
const bootstrapThresholdTicks = 10.0

// RangeATRBar is an OHLCBar whose closing boundary is decided by price
// excursion against a volatility-adaptive threshold instead of the clock.
type RangeATRBar struct {
	OHLCBar

	// ATRValue is the average true range (in tick units) at the time the
	// bar was opened.
	ATRValue float64

	// RangeThreshold is the excursion, in ticks, at which the bar becomes
	// eligible to close.
	RangeThreshold float64

	TickCount      int
	BarStartTime   time.Time
	LastUpdateTime time.Time

	// MinTicks and MinTimeSpan are the closing floors copied from the
	// aggregator configuration when the bar was opened.
	MinTicks    int
	MinTimeSpan time.Duration
}

// RangeATRConfig is fixed at aggregator construction.
type RangeATRConfig struct {
	// ATRLookBackBars is the number of completed bars kept per symbol for
	// ATR computation.
	ATRLookBackBars int

	// RecalcBars recomputes the threshold every N completed bars; bars in
	// between inherit the previous bar's ATR and threshold unchanged.
	RecalcBars int

	// MinTicks is the minimum number of ticks a bar must contain before it
	// may close mid-stream.
	MinTicks int

	// MinTimeSpan is the minimum elapsed tick-stream time before a bar may
	// close mid-stream. Elapsed time is measured between tick timestamps,
	// never against the wall clock, so replays are deterministic.
	MinTimeSpan time.Duration
}

func (c RangeATRConfig) withDefaults() RangeATRConfig {
	if c.ATRLookBackBars <= 0 {
		c.ATRLookBackBars = 14
	}
	if c.RecalcBars <= 0 {
		c.RecalcBars = 5
	}
	if c.MinTicks <= 0 {
		c.MinTicks = 1
	}
	if c.MinTimeSpan <= 0 {
		c.MinTimeSpan = time.Second
	}
	return c
}

// RangeATRAggregator builds range bars whose width adapts to recent
// volatility. State for different symbols is fully independent; like the
// minute aggregator it performs no internal locking.
type RangeATRAggregator struct {
	cfg RangeATRConfig

	open      map[string]*RangeATRBar  // symbol -> currently open bar
	history   map[string][]RangeATRBar // symbol -> last <=ATRLookBackBars sealed bars
	sealedCnt map[string]int           // symbol -> completed-bar counter for recalc cadence
	completed []RangeATRBar
	listeners []func(RangeATRBar)
}

func NewRangeATRAggregator(cfg RangeATRConfig) *RangeATRAggregator {
	return &RangeATRAggregator{
		cfg:       cfg.withDefaults(),
		open:      make(map[string]*RangeATRBar),
		history:   make(map[string][]RangeATRBar),
		sealedCnt: make(map[string]int),
	}
}

// OnBarComplete registers fn to be invoked synchronously whenever a bar
// seals, both mid-stream and during CompleteAllBars.
func (a *RangeATRAggregator) OnBarComplete(fn func(RangeATRBar)) {
	a.listeners = append(a.listeners, fn)
}

// ProcessTick advances the per-symbol state machine by one tick. tickSize
// is the instrument's minimum price increment and converts price distances
// into tick counts; it may differ between calls for different symbols.
//
// The closure test uses the projected range including the incoming tick,
// but a tick that triggers closure belongs to the next bar: the sealed bar
// keeps its own high/low/close and the new bar opens at the tick's price.
// The sealed bar, if any, is returned.
func (a *RangeATRAggregator) ProcessTick(t Tick, tickSize float64) (*RangeATRBar, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if tickSize <= 0 || math.IsNaN(tickSize) || math.IsInf(tickSize, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTickSize, tickSize)
	}

	cur, ok := a.open[t.Symbol]
	if !ok {
		// First tick for the symbol opens a bar and never tests closure.
		atr := a.CalculateATR(t.Symbol, tickSize)
		a.open[t.Symbol] = a.newBar(t, atr, thresholdFrom(atr))
		return nil, nil
	}

	if t.Timestamp.Before(cur.LastUpdateTime) {
		return nil, fmt.Errorf("%w: symbol=%s tick=%s bar last update=%s",
			ErrOutOfOrderTick, t.Symbol,
			t.Timestamp.Format(time.RFC3339Nano), cur.LastUpdateTime.Format(time.RFC3339Nano))
	}

	projectedHigh := math.Max(cur.High, t.Price)
	projectedLow := math.Min(cur.Low, t.Price)
	projectedRangeTicks := (projectedHigh - projectedLow) / tickSize

	if cur.RangeThreshold > 0 &&
		projectedRangeTicks >= cur.RangeThreshold &&
		cur.TickCount >= cur.MinTicks &&
		t.Timestamp.Sub(cur.BarStartTime) >= cur.MinTimeSpan {

		// The close decision time is recorded as the bar's last update so
		// sealed bars always span at least MinTimeSpan.
		cur.LastUpdateTime = t.Timestamp
		sealed := a.seal(t.Symbol, *cur)

		atr, threshold := a.nextThreshold(t.Symbol, tickSize, sealed)
		a.open[t.Symbol] = a.newBar(t, atr, threshold)
		return &sealed, nil
	}

	cur.applyTick(t.Price, t.Volume)
	cur.TickCount++
	cur.LastUpdateTime = t.Timestamp
	return nil, nil
}

// CompleteAllBars seals every open bar unconditionally (no threshold or
// floor checks apply at flush), in sorted symbol order, and clears the
// open-bar state. Idempotent once all bars are sealed.
func (a *RangeATRAggregator) CompleteAllBars() []RangeATRBar {
	symbols := make([]string, 0, len(a.open))
	for sym := range a.open {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	sealed := make([]RangeATRBar, 0, len(symbols))
	for _, sym := range symbols {
		sealed = append(sealed, a.seal(sym, *a.open[sym]))
		delete(a.open, sym)
	}
	return sealed
}

// CompletedBars returns a copy of all sealed bars across symbols, in
// sealing order.
func (a *RangeATRAggregator) CompletedBars() []RangeATRBar {
	out := make([]RangeATRBar, len(a.completed))
	copy(out, a.completed)
	return out
}

// BarsForSymbol returns the sealed bars of one symbol in sealing order.
func (a *RangeATRAggregator) BarsForSymbol(symbol string) []RangeATRBar {
	var out []RangeATRBar
	for _, b := range a.completed {
		if b.Symbol == symbol {
			out = append(out, b)
		}
	}
	return out
}

// CalculateATR computes the average true range for a symbol over its
// completed-bar window, expressed in tick units so it compares directly
// against RangeThreshold. With fewer than two bars of history it returns
// the bootstrap constant.
//
// True range of a bar given its predecessor is
//
//	max(high-low, |high-prevClose|, |low-prevClose|)
//
// and the result is the arithmetic mean over the window's consecutive
// pairs. The window holds bars of variable width, so this deliberately
// does not apply Wilder smoothing the way a fixed-period ATR would.
func (a *RangeATRAggregator) CalculateATR(symbol string, tickSize float64) float64 {
	window := a.history[symbol]
	if len(window) < 2 {
		return bootstrapThresholdTicks
	}

	var sum float64
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1], window[i]

		tr := cur.High - cur.Low
		if hc := math.Abs(cur.High - prev.Close); hc > tr {
			tr = hc
		}
		if lc := math.Abs(cur.Low - prev.Close); lc > tr {
			tr = lc
		}
		sum += tr / tickSize
	}
	return sum / float64(len(window)-1)
}

func (a *RangeATRAggregator) newBar(t Tick, atr, threshold float64) *RangeATRBar {
	return &RangeATRBar{
		OHLCBar:        newOHLCBar(t.Symbol, t.Price, t.Volume, t.Timestamp),
		ATRValue:       atr,
		RangeThreshold: threshold,
		TickCount:      1,
		BarStartTime:   t.Timestamp,
		LastUpdateTime: t.Timestamp,
		MinTicks:       a.cfg.MinTicks,
		MinTimeSpan:    a.cfg.MinTimeSpan,
	}
}

// nextThreshold decides the ATR and threshold for the bar replacing a just
// sealed one: a full recomputation every RecalcBars completions, otherwise
// the sealed bar's values carried forward unchanged.
func (a *RangeATRAggregator) nextThreshold(symbol string, tickSize float64, prev RangeATRBar) (atr, threshold float64) {
	if a.sealedCnt[symbol]%a.cfg.RecalcBars == 0 {
		atr = a.CalculateATR(symbol, tickSize)
		return atr, thresholdFrom(atr)
	}
	if prev.RangeThreshold <= 0 {
		return prev.ATRValue, bootstrapThresholdTicks
	}
	return prev.ATRValue, prev.RangeThreshold
}

func (a *RangeATRAggregator) seal(symbol string, b RangeATRBar) RangeATRBar {
	a.completed = append(a.completed, b)

	hist := append(a.history[symbol], b)
	if len(hist) > a.cfg.ATRLookBackBars {
		hist = hist[len(hist)-a.cfg.ATRLookBackBars:]
	}
	a.history[symbol] = hist
	a.sealedCnt[symbol]++

	for _, fn := range a.listeners {
		fn(b)
	}
	return b
}

func thresholdFrom(atr float64) float64 {
	if atr > 0 {
		return atr
	}
	return bootstrapThresholdTicks
}
