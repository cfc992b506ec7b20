package postgres

import (
	"testing"
	"time"

	"barcollector/internal/bars"
)

// go test -v --run TestFromMinuteBar
func TestFromMinuteBar(t *testing.T) {
	start := time.Date(2024, 8, 20, 9, 15, 0, 0, time.UTC)
	b := bars.OHLCBar{
		Symbol: "RELIANCE", Open: 100, High: 105, Low: 99.5, Close: 104,
		Volume: 1200, Timestamp: start,
	}

	r := FromMinuteBar(b)
	if r.Kind != KindMinute {
		t.Errorf("expected kind %q, got %q", KindMinute, r.Kind)
	}
	if !r.Start.Equal(start) {
		t.Errorf("expected start %v, got %v", start, r.Start)
	}
	if r.Open != 100 || r.High != 105 || r.Low != 99.5 || r.Close != 104 || r.Volume != 1200 {
		t.Errorf("unexpected OHLCV: %+v", r)
	}
}

// go test -v --run TestFromRangeBar
func TestFromRangeBar(t *testing.T) {
	start := time.Date(2024, 8, 20, 9, 15, 0, 0, time.UTC)
	last := start.Add(7 * time.Second)
	b := bars.RangeATRBar{
		OHLCBar: bars.OHLCBar{
			Symbol: "NIFTY24AUGFUT", Open: 24500, High: 24510.5, Low: 24498, Close: 24510,
			Volume: 375, Timestamp: start,
		},
		ATRValue:       12.5,
		RangeThreshold: 12.5,
		TickCount:      42,
		BarStartTime:   start,
		LastUpdateTime: last,
	}

	r := FromRangeBar(b)
	if r.Kind != KindRangeATR {
		t.Errorf("expected kind %q, got %q", KindRangeATR, r.Kind)
	}
	if !r.Start.Equal(start) || !r.LastUpdate.Equal(last) {
		t.Errorf("unexpected timestamps: start=%v last=%v", r.Start, r.LastUpdate)
	}
	if r.TickCount != 42 || r.ATRValue != 12.5 || r.RangeThreshold != 12.5 {
		t.Errorf("unexpected range fields: %+v", r)
	}
}
