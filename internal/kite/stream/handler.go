package stream

import (
	"time"

	"barcollector/internal/bars"
	"barcollector/internal/kite/instruments"
	"barcollector/pkg/kite"

	"go.uber.org/zap"
)

// MakeMessageHandler returns a function that decodes binary ticker frames
// into ticks and forwards them to the dispatch channel. The channel has a
// single consumer, which serializes all aggregator access.
func MakeMessageHandler(logger *zap.Logger, store *instruments.Store, tickCh chan<- bars.Tick) func(msg []byte) {
	return func(msg []byte) {
		packets, err := kite.ParseBinaryFrame(msg)
		if err != nil {
			logger.Warn("failed to parse ticker frame", zap.Error(err))
			return
		}

		for _, p := range packets {
			in, ok := store.ByToken(p.InstrumentToken)
			if !ok {
				// Not on the watchlist; the server should not send these.
				logger.Debug("tick for unknown token", zap.Uint32("token", p.InstrumentToken))
				continue
			}

			tick := bars.Tick{
				Symbol:    in.TradingSymbol,
				Price:     p.LastPrice,
				Volume:    uint64(p.LastQuantity),
				Timestamp: tickTime(p),
			}

			select {
			case tickCh <- tick:
				// forwarded
			default:
				logger.Warn("tick channel full, dropping tick",
					zap.String("symbol", in.TradingSymbol),
					zap.Time("ts", tick.Timestamp))
			}
		}
	}
}

// tickTime prefers exchange-supplied timestamps; only LTP-mode packets,
// which carry none, fall back to ingestion time.
func tickTime(p kite.TickData) time.Time {
	if !p.LastTradeTime.IsZero() {
		return p.LastTradeTime
	}
	if !p.ExchangeTime.IsZero() {
		return p.ExchangeTime
	}
	return time.Now()
}
