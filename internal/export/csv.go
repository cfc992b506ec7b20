package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"barcollector/internal/bars"
)

var (
	minuteHeader = []string{"start", "open", "high", "low", "close", "volume"}
	rangeHeader  = []string{"start", "last_update", "open", "high", "low", "close",
		"volume", "tick_count", "atr", "range_threshold"}
)

// CSVWriter streams sealed bars into per-symbol CSV files, one file per
// (symbol, bar kind). Files are created lazily with a header row. Safe for
// use from completion listeners on multiple aggregators.
type CSVWriter struct {
	dir string

	mu      sync.Mutex
	files   map[string]*os.File
	writers map[string]*csv.Writer
}

func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &CSVWriter{
		dir:     dir,
		files:   make(map[string]*os.File),
		writers: make(map[string]*csv.Writer),
	}, nil
}

// WriteMinuteBar appends one sealed minute bar to the symbol's minute file.
func (w *CSVWriter) WriteMinuteBar(b bars.OHLCBar) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cw, err := w.writer(b.Symbol+"_minute", minuteHeader)
	if err != nil {
		return err
	}
	return cw.Write([]string{
		b.Timestamp.Format(time.RFC3339),
		floatStr(b.Open),
		floatStr(b.High),
		floatStr(b.Low),
		floatStr(b.Close),
		strconv.FormatUint(b.Volume, 10),
	})
}

// WriteRangeBar appends one sealed Range-ATR bar to the symbol's range file.
func (w *CSVWriter) WriteRangeBar(b bars.RangeATRBar) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cw, err := w.writer(b.Symbol+"_range_atr", rangeHeader)
	if err != nil {
		return err
	}
	return cw.Write([]string{
		b.BarStartTime.Format(time.RFC3339Nano),
		b.LastUpdateTime.Format(time.RFC3339Nano),
		floatStr(b.Open),
		floatStr(b.High),
		floatStr(b.Low),
		floatStr(b.Close),
		strconv.FormatUint(b.Volume, 10),
		strconv.Itoa(b.TickCount),
		floatStr(b.ATRValue),
		floatStr(b.RangeThreshold),
	})
}

// Flush pushes buffered rows to disk.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for name, cw := range w.writers {
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("flush %s: %w", name, err)
		}
	}
	return nil
}

// Close flushes and closes all open files.
func (w *CSVWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for name, f := range w.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	w.files = make(map[string]*os.File)
	w.writers = make(map[string]*csv.Writer)
	return firstErr
}

// writer lazily opens <dir>/<name>.csv and writes its header. Must be
// called with the mutex held.
func (w *CSVWriter) writer(name string, header []string) (*csv.Writer, error) {
	if cw, ok := w.writers[name]; ok {
		return cw, nil
	}

	f, err := os.Create(filepath.Join(w.dir, name+".csv"))
	if err != nil {
		return nil, fmt.Errorf("create %s.csv: %w", name, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header for %s: %w", name, err)
	}

	w.files[name] = f
	w.writers[name] = cw
	return cw, nil
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
