package bars

import (
	"fmt"
	"sort"
	"time"
)

// MinuteAggregator groups ticks into fixed calendar-minute OHLC buckets,
// one independent bucket stream per symbol. It is a synchronous state
// machine with no internal locking: callers feeding it from multiple
// goroutines must serialize ProcessTick calls.
type MinuteAggregator struct {
	open      map[string]*OHLCBar // symbol -> bar for the currently open minute
	completed []OHLCBar
	listeners []func(OHLCBar)
}

func NewMinuteAggregator() *MinuteAggregator {
	return &MinuteAggregator{
		open: make(map[string]*OHLCBar),
	}
}

// OnBarComplete registers fn to be invoked synchronously whenever a bar
// seals, both mid-stream and during CompleteAllBars.
func (a *MinuteAggregator) OnBarComplete(fn func(OHLCBar)) {
	a.listeners = append(a.listeners, fn)
}

// ProcessTick folds one tick into its minute bucket. When the tick belongs
// to a later minute than the symbol's open bucket, the open bar seals first
// and the sealed bar is returned. A tick whose bucket is earlier than the
// open one is rejected with ErrOutOfOrderTick and not applied.
func (a *MinuteAggregator) ProcessTick(t Tick) (*OHLCBar, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	bucket := t.Timestamp.Truncate(time.Minute)

	cur, ok := a.open[t.Symbol]
	if ok {
		switch {
		case cur.Timestamp.Equal(bucket):
			cur.applyTick(t.Price, t.Volume)
			return nil, nil
		case bucket.Before(cur.Timestamp):
			return nil, fmt.Errorf("%w: symbol=%s tick bucket=%s open bucket=%s",
				ErrOutOfOrderTick, t.Symbol, bucket.Format(time.RFC3339), cur.Timestamp.Format(time.RFC3339))
		}
		// Tick belongs to a later minute: seal the open bucket first.
		sealed := a.seal(*cur)
		bar := newOHLCBar(t.Symbol, t.Price, t.Volume, bucket)
		a.open[t.Symbol] = &bar
		return &sealed, nil
	}

	bar := newOHLCBar(t.Symbol, t.Price, t.Volume, bucket)
	a.open[t.Symbol] = &bar
	return nil, nil
}

// CompleteAllBars seals every open bucket, in sorted symbol order so the
// sealing order is stable across runs. Idempotent: a second call with no
// open bars seals nothing.
func (a *MinuteAggregator) CompleteAllBars() []OHLCBar {
	symbols := make([]string, 0, len(a.open))
	for sym := range a.open {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	sealed := make([]OHLCBar, 0, len(symbols))
	for _, sym := range symbols {
		sealed = append(sealed, a.seal(*a.open[sym]))
		delete(a.open, sym)
	}
	return sealed
}

// CompletedBars returns a copy of all sealed bars in sealing order.
func (a *MinuteAggregator) CompletedBars() []OHLCBar {
	out := make([]OHLCBar, len(a.completed))
	copy(out, a.completed)
	return out
}

func (a *MinuteAggregator) seal(b OHLCBar) OHLCBar {
	a.completed = append(a.completed, b)
	for _, fn := range a.listeners {
		fn(b)
	}
	return b
}
