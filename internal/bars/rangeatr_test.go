package bars

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func rangeCfg() RangeATRConfig {
	return RangeATRConfig{
		ATRLookBackBars: 14,
		RecalcBars:      2,
		MinTicks:        1,
		MinTimeSpan:     time.Second,
	}
}

func rtick(sym string, price float64, offset time.Duration) Tick {
	return Tick{Symbol: sym, Price: price, Volume: 1, Timestamp: tts(offset)}
}

// go test -v --run TestRangeATRBootstrap
func TestRangeATRBootstrap(t *testing.T) {
	agg := NewRangeATRAggregator(rangeCfg())

	// The first tick for a new symbol opens a bar with the bootstrap
	// threshold and never triggers closure in the same call.
	sealed, err := agg.ProcessTick(rtick("X", 100, 0), 0.05)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sealed != nil {
		t.Fatal("first tick must not seal a bar")
	}

	flushed := agg.CompleteAllBars()
	if len(flushed) != 1 {
		t.Fatalf("expected 1 flushed bar, got %d", len(flushed))
	}
	b := flushed[0]
	if b.RangeThreshold != 10 || b.ATRValue != 10 {
		t.Errorf("expected bootstrap threshold/ATR of 10, got threshold=%v atr=%v", b.RangeThreshold, b.ATRValue)
	}
	if b.TickCount != 1 {
		t.Errorf("expected tick count 1, got %d", b.TickCount)
	}
}

// go test -v --run TestRangeATRCalculation
func TestRangeATRCalculation(t *testing.T) {
	agg := NewRangeATRAggregator(rangeCfg())

	hist := func(high, low, close float64) RangeATRBar {
		return RangeATRBar{OHLCBar: OHLCBar{Symbol: "X", Open: low, High: high, Low: low, Close: close}}
	}
	agg.history["X"] = []RangeATRBar{hist(10, 8, 9), hist(11, 9, 10), hist(9, 7, 8)}

	// Pair 1: max(11-9, |11-9|, |9-9|) = 2; pair 2: max(9-7, |9-10|, |7-10|) = 3.
	got := agg.CalculateATR("X", 1)
	if math.Abs(got-2.5) > 1e-9 {
		t.Fatalf("expected ATR 2.5, got %v", got)
	}

	// Fewer than two bars of history falls back to the bootstrap constant.
	agg.history["X"] = agg.history["X"][:1]
	if got := agg.CalculateATR("X", 1); got != 10 {
		t.Fatalf("expected bootstrap ATR 10, got %v", got)
	}
}

// go test -v --run TestRangeATRClosure
func TestRangeATRClosure(t *testing.T) {
	agg := NewRangeATRAggregator(rangeCfg())

	if _, err := agg.ProcessTick(rtick("X", 100, 0), 1); err != nil {
		t.Fatal(err)
	}

	// Excursion of 15 ticks crosses the bootstrap threshold of 10; the
	// triggering tick opens the next bar instead of extending the sealed one.
	sealed, err := agg.ProcessTick(rtick("X", 115, 2*time.Second), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sealed == nil {
		t.Fatal("expected the bar to seal")
	}
	if sealed.Open != 100 || sealed.High != 100 || sealed.Low != 100 || sealed.Close != 100 {
		t.Errorf("sealed bar must not contain the triggering tick: %+v", sealed.OHLCBar)
	}
	if got := sealed.LastUpdateTime.Sub(sealed.BarStartTime); got < agg.cfg.MinTimeSpan {
		t.Errorf("sealed bar spans %v, below MinTimeSpan %v", got, agg.cfg.MinTimeSpan)
	}

	next := agg.CompleteAllBars()
	if len(next) != 1 || next[0].Open != 115 {
		t.Fatalf("expected new bar opened at 115, got %+v", next)
	}
}

// go test -v --run TestRangeATRMinTicksGate
func TestRangeATRMinTicksGate(t *testing.T) {
	cfg := rangeCfg()
	cfg.MinTicks = 3
	agg := NewRangeATRAggregator(cfg)

	seq := []struct {
		price  float64
		offset time.Duration
		seals  bool
	}{
		{100, 0, false},
		{115, 2 * time.Second, false}, // range met, tick count 1 < 3
		{116, 4 * time.Second, false}, // range met, tick count 2 < 3
		{117, 6 * time.Second, true},  // tick count 3 >= 3
	}
	for i, s := range seq {
		sealed, err := agg.ProcessTick(rtick("X", s.price, s.offset), 1)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if (sealed != nil) != s.seals {
			t.Fatalf("tick %d: seal=%v, want %v", i, sealed != nil, s.seals)
		}
	}

	got := agg.CompletedBars()
	if len(got) != 1 {
		t.Fatalf("expected 1 sealed bar, got %d", len(got))
	}
	if got[0].TickCount != 3 || got[0].High != 116 {
		t.Errorf("unexpected sealed bar: %+v", got[0])
	}
}

// go test -v --run TestRangeATRMinTimeGate
func TestRangeATRMinTimeGate(t *testing.T) {
	cfg := rangeCfg()
	cfg.MinTimeSpan = 5 * time.Second
	agg := NewRangeATRAggregator(cfg)

	if _, err := agg.ProcessTick(rtick("X", 100, 0), 1); err != nil {
		t.Fatal(err)
	}

	// Threshold crossed after 2s of stream time: too early to close.
	sealed, err := agg.ProcessTick(rtick("X", 120, 2*time.Second), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sealed != nil {
		t.Fatal("bar sealed before MinTimeSpan elapsed")
	}

	sealed, err = agg.ProcessTick(rtick("X", 120, 6*time.Second), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sealed == nil {
		t.Fatal("expected seal once MinTimeSpan elapsed")
	}
	if span := sealed.LastUpdateTime.Sub(sealed.BarStartTime); span < cfg.MinTimeSpan {
		t.Errorf("sealed bar spans %v, below MinTimeSpan %v", span, cfg.MinTimeSpan)
	}
}

// go test -v --run TestRangeATRRecalcCadence
func TestRangeATRRecalcCadence(t *testing.T) {
	agg := NewRangeATRAggregator(rangeCfg()) // RecalcBars = 2

	// Single-tick bars sealed by 15-tick jumps every 2s. Consecutive sealed
	// closes are 15 apart, so a recomputed ATR is 15 while carried-forward
	// thresholds stay at their predecessor's value.
	prices := []float64{100, 115, 130, 144, 146}
	offsets := []time.Duration{0, 2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second}
	for i := range prices {
		if _, err := agg.ProcessTick(rtick("X", prices[i], offsets[i]), 1); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	agg.CompleteAllBars()

	got := agg.BarsForSymbol("X")
	if len(got) != 4 {
		t.Fatalf("expected 4 bars, got %d", len(got))
	}

	wantThresholds := []float64{10, 10, 15, 15}
	for i, want := range wantThresholds {
		if got[i].RangeThreshold != want {
			t.Errorf("bar %d: threshold %v, want %v", i+1, got[i].RangeThreshold, want)
		}
	}

	// 144 stayed inside bar 3's recomputed threshold of 15 and extended it.
	if got[2].High != 144 || got[2].TickCount != 2 {
		t.Errorf("unexpected third bar: %+v", got[2])
	}
}

// go test -v --run TestRangeATRHistoryBounded
func TestRangeATRHistoryBounded(t *testing.T) {
	cfg := rangeCfg()
	cfg.ATRLookBackBars = 2
	agg := NewRangeATRAggregator(cfg)

	price := 100.0
	offset := time.Duration(0)
	if _, err := agg.ProcessTick(rtick("X", price, offset), 1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		price += 20
		offset += 2 * time.Second
		if _, err := agg.ProcessTick(rtick("X", price, offset), 1); err != nil {
			t.Fatal(err)
		}
	}

	if n := len(agg.history["X"]); n > 2 {
		t.Fatalf("ATR history grew to %d entries, want <= 2", n)
	}
	if n := len(agg.CompletedBars()); n != 4 {
		t.Fatalf("expected 4 completed bars, got %d", n)
	}
}

// go test -v --run TestRangeATRFlushSkipsGating
func TestRangeATRFlushSkipsGating(t *testing.T) {
	cfg := rangeCfg()
	cfg.MinTicks = 5
	cfg.MinTimeSpan = time.Minute
	agg := NewRangeATRAggregator(cfg)

	if _, err := agg.ProcessTick(rtick("B", 50, 0), 1); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.ProcessTick(rtick("A", 100, 0), 1); err != nil {
		t.Fatal(err)
	}

	sealed := agg.CompleteAllBars()
	if len(sealed) != 2 {
		t.Fatalf("expected 2 flushed bars, got %d", len(sealed))
	}
	// Flush seals in sorted symbol order and ignores the closing floors.
	if sealed[0].Symbol != "A" || sealed[1].Symbol != "B" {
		t.Errorf("unexpected flush order: %s, %s", sealed[0].Symbol, sealed[1].Symbol)
	}
	if sealed[0].TickCount != 1 {
		t.Errorf("flush must seal unconditionally, got tick count %d", sealed[0].TickCount)
	}

	if n := len(agg.CompleteAllBars()); n != 0 {
		t.Fatalf("second flush sealed %d bars, want 0", n)
	}
}

// go test -v --run TestRangeATRDeterministicReplay
func TestRangeATRDeterministicReplay(t *testing.T) {
	run := func() []RangeATRBar {
		agg := NewRangeATRAggregator(rangeCfg())
		price := 500.0
		for i := 0; i < 200; i++ {
			// Fixed sawtooth: enough excursions to seal several bars.
			if i%3 == 0 {
				price += 7
			} else {
				price -= 2
			}
			tk := rtick("X", price, time.Duration(i)*700*time.Millisecond)
			if _, err := agg.ProcessTick(tk, 1); err != nil {
				t.Fatal(err)
			}
		}
		agg.CompleteAllBars()
		return agg.CompletedBars()
	}

	first, second := run(), run()
	if len(first) == 0 {
		t.Fatal("expected the replay to seal at least one bar")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical tick sequences produced different sealed bars")
	}

	for _, b := range first {
		if b.High < b.Open || b.High < b.Close || b.Low > b.Open || b.Low > b.Close {
			t.Fatalf("OHLC invariants violated: %+v", b)
		}
		if b.TickCount < 1 || b.LastUpdateTime.Before(b.BarStartTime) {
			t.Fatalf("bar lifecycle invariants violated: %+v", b)
		}
	}
}

// go test -v --run TestRangeATRRejectsBadInput
func TestRangeATRRejectsBadInput(t *testing.T) {
	agg := NewRangeATRAggregator(rangeCfg())

	if _, err := agg.ProcessTick(rtick("X", 100, 0), 0); !errors.Is(err, ErrInvalidTickSize) {
		t.Errorf("expected ErrInvalidTickSize, got %v", err)
	}
	if _, err := agg.ProcessTick(rtick("X", 100, 0), -0.05); !errors.Is(err, ErrInvalidTickSize) {
		t.Errorf("expected ErrInvalidTickSize for negative size, got %v", err)
	}
	if _, err := agg.ProcessTick(rtick("X", math.NaN(), 0), 1); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}

	if _, err := agg.ProcessTick(rtick("X", 100, time.Minute), 1); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.ProcessTick(rtick("X", 101, 0), 1); !errors.Is(err, ErrOutOfOrderTick) {
		t.Errorf("expected ErrOutOfOrderTick, got %v", err)
	}
}
