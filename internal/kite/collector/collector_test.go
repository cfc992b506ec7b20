package collector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"barcollector/internal/bars"
	"barcollector/internal/export"
	"barcollector/internal/kite/instruments"
	"barcollector/pkg/kite"

	"go.uber.org/zap"
)

// newTestCollector builds a collector around a seeded instrument store and a
// temp-dir CSV sink, skipping the broker login and WebSocket plumbing.
func newTestCollector(t *testing.T, dir string) *Collector {
	t.Helper()

	store := instruments.NewStore()
	store.Replace([]kite.Instrument{
		{Token: 738561, TradingSymbol: "RELIANCE", TickSize: 0.05},
	})

	csvw, err := export.NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("failed to create CSV writer: %v", err)
	}

	c := &Collector{
		logger:    zap.NewNop(),
		csv:       csvw,
		store:     store,
		minuteAgg: bars.NewMinuteAggregator(),
		rangeAgg:  bars.NewRangeATRAggregator(bars.RangeATRConfig{}),
		tickCh:    make(chan bars.Tick, 100),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.registerSinks()
	return c
}

// go test -v --run TestCollectorPipelineFlushesOnQuit
func TestCollectorPipelineFlushesOnQuit(t *testing.T) {
	dir := t.TempDir()
	c := newTestCollector(t, dir)

	go c.run()

	start := time.Date(2024, 8, 20, 9, 15, 0, 0, time.UTC)
	// Moves stay under the bootstrap range threshold (10 price ticks at a
	// 0.05 tick size), so only the flush seals the open range bar.
	c.tickCh <- bars.Tick{Symbol: "RELIANCE", Price: 100, Volume: 10, Timestamp: start}
	c.tickCh <- bars.Tick{Symbol: "RELIANCE", Price: 100.10, Volume: 5, Timestamp: start.Add(30 * time.Second)}
	c.tickCh <- bars.Tick{Symbol: "RELIANCE", Price: 100.15, Volume: 5, Timestamp: start.Add(65 * time.Second)}

	close(c.quit)
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}
	if err := c.csv.Close(); err != nil {
		t.Fatalf("failed to close CSV writer: %v", err)
	}

	// One minute bar sealed mid-stream, one at flush.
	if got := c.minuteSealed.Load(); got != 2 {
		t.Errorf("expected 2 sealed minute bars, got %d", got)
	}
	// The range bar never hit its threshold, so only the flush seals it.
	if got := c.rangeSealed.Load(); got != 1 {
		t.Errorf("expected 1 sealed range bar, got %d", got)
	}

	for _, name := range []string{"RELIANCE_minute.csv", "RELIANCE_range_atr.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

// go test -v --run TestCollectorDrainsBufferedTicks
func TestCollectorDrainsBufferedTicks(t *testing.T) {
	dir := t.TempDir()
	c := newTestCollector(t, dir)

	// Buffer ticks before the consumer starts, then stop immediately: the
	// quit path must still process everything in the channel.
	start := time.Date(2024, 8, 20, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c.tickCh <- bars.Tick{
			Symbol:    "RELIANCE",
			Price:     100 + float64(i),
			Volume:    1,
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}
	}
	close(c.quit)

	go c.run()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}

	minute := c.minuteAgg.CompletedBars()
	if len(minute) != 1 {
		t.Fatalf("expected 1 minute bar after drain+flush, got %d", len(minute))
	}
	if minute[0].Volume != 5 {
		t.Errorf("expected all 5 ticks aggregated, got volume %d", minute[0].Volume)
	}
}

// go test -v --run TestCollectorSkipsUnknownSymbols
func TestCollectorSkipsUnknownSymbols(t *testing.T) {
	dir := t.TempDir()
	c := newTestCollector(t, dir)

	c.processTick(bars.Tick{Symbol: "UNLISTED", Price: 1, Volume: 1, Timestamp: time.Now()})
	if len(c.minuteAgg.CompleteAllBars()) != 0 {
		t.Error("tick without instrument metadata must not reach the aggregators")
	}
}
