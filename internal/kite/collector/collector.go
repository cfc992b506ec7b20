package collector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"barcollector/config"
	"barcollector/internal/bars"
	"barcollector/internal/export"
	"barcollector/internal/kite/instruments"
	"barcollector/internal/kite/session"
	"barcollector/internal/kite/stream"
	"barcollector/pkg/kite"
	"barcollector/pkg/storage/postgres"
	"barcollector/pkg/storage/sqlite"

	"go.uber.org/zap"
)

// Collector wires the full pipeline: broker session, instrument master,
// WebSocket tick stream, both bar aggregators and the export sinks.
type Collector struct {
	cfg    *config.Config
	logger *zap.Logger

	session *session.Manager
	ws      *kite.WSClient
	cache   *sqlite.SqliteClient
	archive *postgres.PostgresClient // nil unless enabled
	csv     *export.CSVWriter
	store   *instruments.Store

	minuteAgg *bars.MinuteAggregator
	rangeAgg  *bars.RangeATRAggregator

	minuteSealed atomic.Int64
	rangeSealed  atomic.Int64

	tickCh chan bars.Tick
	quit   chan struct{}
	done   chan struct{}
}

// Start initializes the data pipeline: it logs in, loads the instrument
// master, subscribes to the tick stream and begins aggregating. The
// returned Collector must be Closed to flush open bars.
func Start(cfg *config.Config, logger *zap.Logger) (*Collector, error) {
	c := &Collector{
		cfg:       cfg,
		logger:    logger,
		store:     instruments.NewStore(),
		minuteAgg: bars.NewMinuteAggregator(),
		rangeAgg: bars.NewRangeATRAggregator(bars.RangeATRConfig{
			ATRLookBackBars: cfg.Bars.RangeATR.ATRLookBack,
			RecalcBars:      cfg.Bars.RangeATR.RecalcBars,
			MinTicks:        cfg.Bars.RangeATR.MinTicks,
			MinTimeSpan:     cfg.Bars.RangeATR.MinTime,
		}),
		tickCh: make(chan bars.Tick, 1000),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Kite.REST.Timeout)
	defer cancel()

	// Broker login
	restClient := kite.NewRESTClient(cfg.Kite.REST.BaseURL, cfg.Kite.REST.Timeout)
	c.session = session.NewManager(cfg.Kite, restClient, logger)
	accessToken, err := c.session.Establish(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	// Instrument master: SQLite cache backed by the REST dump
	c.cache, err = sqlite.InitializeAndMigrateInstrumentRecord(cfg.Sqlite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open instrument cache: %w", err)
	}
	loader := &instruments.Loader{
		Cache:  c.cache,
		Rest:   restClient,
		MaxAge: cfg.Sqlite.MaxAge,
		Logger: logger,
	}
	if err := loader.Load(ctx, c.store); err != nil {
		return nil, fmt.Errorf("failed to load instruments: %w", err)
	}
	instruments.StartDailyRefresh(loader, c.store, cfg.Kite.REST.Timeout)

	tokens, err := c.store.TokensFor(cfg.Symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watchlist: %w", err)
	}

	// Sinks
	c.csv, err = export.NewCSVWriter(cfg.Export.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}
	if cfg.Postgres.Enabled {
		c.archive, err = postgres.InitializeAndMigrateBarRecord(cfg.Postgres, true)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to bar archive: %w", err)
		}
	}
	c.registerSinks()

	// Tick consumer: the single goroutine serializing aggregator access
	go c.run()

	// WebSocket stream
	c.ws = kite.NewWSClient(cfg.Kite.WS.URL, c.session.APIKey(), accessToken, logger)
	c.ws.SetMessageHandler(stream.MakeMessageHandler(logger, c.store, c.tickCh))
	if err := c.ws.Connect(tokens); err != nil {
		return nil, fmt.Errorf("failed to connect ticker: %w", err)
	}
	go c.ws.Listen()

	// Periodically print sealed bar counts for visibility
	go func() {
		for {
			select {
			case <-c.quit:
				return
			case <-time.After(5 * time.Second):
				logger.Info("sealed bars so far",
					zap.Int64("minute", c.minuteSealed.Load()),
					zap.Int64("range_atr", c.rangeSealed.Load()))
			}
		}
	}()

	return c, nil
}

// registerSinks attaches the completion listeners: every sealed bar goes to
// CSV and, when enabled, to the Postgres archive. Listeners run on the
// consumer goroutine, so no extra synchronization is needed.
func (c *Collector) registerSinks() {
	c.minuteAgg.OnBarComplete(func(b bars.OHLCBar) {
		c.minuteSealed.Add(1)
		if err := c.csv.WriteMinuteBar(b); err != nil {
			c.logger.Warn("failed to export minute bar", zap.String("symbol", b.Symbol), zap.Error(err))
		}
		if c.archive != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := c.archive.InsertBar(ctx, postgres.FromMinuteBar(b)); err != nil {
				c.logger.Warn("failed to archive minute bar", zap.String("symbol", b.Symbol), zap.Error(err))
			}
			cancel()
		}
	})

	c.rangeAgg.OnBarComplete(func(b bars.RangeATRBar) {
		c.rangeSealed.Add(1)
		if err := c.csv.WriteRangeBar(b); err != nil {
			c.logger.Warn("failed to export range bar", zap.String("symbol", b.Symbol), zap.Error(err))
		}
		if c.archive != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := c.archive.InsertBar(ctx, postgres.FromRangeBar(b)); err != nil {
				c.logger.Warn("failed to archive range bar", zap.String("symbol", b.Symbol), zap.Error(err))
			}
			cancel()
		}
	})
}

// run is the single tick consumer. It owns both aggregators: all
// ProcessTick and CompleteAllBars calls happen here.
func (c *Collector) run() {
	defer close(c.done)

	for {
		select {
		case tick := <-c.tickCh:
			c.processTick(tick)
		case <-c.quit:
			c.drain()
			c.flush()
			return
		}
	}
}

func (c *Collector) processTick(tick bars.Tick) {
	in, ok := c.store.BySymbol(tick.Symbol)
	if !ok || in.TickSize <= 0 {
		c.logger.Warn("tick without usable instrument metadata", zap.String("symbol", tick.Symbol))
		return
	}

	if _, err := c.minuteAgg.ProcessTick(tick); err != nil {
		c.logger.Warn("minute aggregator rejected tick", zap.String("symbol", tick.Symbol), zap.Error(err))
	}
	if _, err := c.rangeAgg.ProcessTick(tick, in.TickSize); err != nil {
		c.logger.Warn("range aggregator rejected tick", zap.String("symbol", tick.Symbol), zap.Error(err))
	}
}

// drain consumes ticks already buffered at shutdown time.
func (c *Collector) drain() {
	for {
		select {
		case tick := <-c.tickCh:
			c.processTick(tick)
		default:
			return
		}
	}
}

// flush seals all open bars; the sinks receive them through the listeners.
func (c *Collector) flush() {
	minute := c.minuteAgg.CompleteAllBars()
	ranged := c.rangeAgg.CompleteAllBars()
	c.logger.Info("flushed open bars",
		zap.Int("minute", len(minute)),
		zap.Int("range_atr", len(ranged)))
}

// Close stops the stream, flushes all open bars and releases resources.
func (c *Collector) Close(ctx context.Context) error {
	if err := c.ws.Close(); err != nil {
		c.logger.Warn("failed to close WebSocket", zap.Error(err))
	}

	close(c.quit)
	select {
	case <-c.done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}

	if err := c.csv.Close(); err != nil {
		c.logger.Warn("failed to close CSV writer", zap.Error(err))
	}
	if c.archive != nil {
		if err := c.archive.Close(); err != nil {
			c.logger.Warn("failed to close bar archive", zap.Error(err))
		}
	}
	if err := c.cache.Close(); err != nil {
		c.logger.Warn("failed to close instrument cache", zap.Error(err))
	}
	if err := c.session.Invalidate(ctx); err != nil {
		c.logger.Warn("failed to invalidate session", zap.Error(err))
	}

	c.logger.Info("collector stopped",
		zap.Int64("minute_bars", c.minuteSealed.Load()),
		zap.Int64("range_atr_bars", c.rangeSealed.Load()))
	return nil
}
