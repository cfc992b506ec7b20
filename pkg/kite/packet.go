package kite

import (
	"encoding/binary"
	"fmt"
	"time"
)

// ParseBinaryFrame splits a ticker frame into its market packets.
//
// Frame layout (all integers big-endian):
//
//	[2B packet count] then per packet [2B payload length][payload]
//
// Payload sizes are 8 (ltp), 44 (quote) or 184 (full) bytes. One-byte
// frames are server heartbeats and decode to an empty slice.
func ParseBinaryFrame(frame []byte) ([]TickData, error) {
	if len(frame) < 2 {
		return nil, nil // heartbeat
	}

	count := int(binary.BigEndian.Uint16(frame[0:2]))
	ticks := make([]TickData, 0, count)

	off := 2
	for i := 0; i < count; i++ {
		if off+2 > len(frame) {
			return nil, fmt.Errorf("truncated frame: missing length of packet %d/%d", i+1, count)
		}
		size := int(binary.BigEndian.Uint16(frame[off : off+2]))
		off += 2
		if off+size > len(frame) {
			return nil, fmt.Errorf("truncated frame: packet %d/%d wants %d bytes, %d left",
				i+1, count, size, len(frame)-off)
		}

		tick, err := parsePacket(frame[off : off+size])
		if err != nil {
			return nil, fmt.Errorf("packet %d/%d: %w", i+1, count, err)
		}
		ticks = append(ticks, tick)
		off += size
	}

	return ticks, nil
}

func parsePacket(b []byte) (TickData, error) {
	if len(b) < packetLTPSize {
		return TickData{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}

	token := binary.BigEndian.Uint32(b[0:4])
	div := priceDivisor(token)

	tick := TickData{
		Mode:            ModeLTP,
		InstrumentToken: token,
		LastPrice:       price(b, 4, div),
	}

	if len(b) < packetQuoteSize {
		return tick, nil
	}

	tick.Mode = ModeQuote
	tick.LastQuantity = binary.BigEndian.Uint32(b[8:12])
	tick.AveragePrice = price(b, 12, div)
	tick.Volume = binary.BigEndian.Uint32(b[16:20])
	tick.BuyQuantity = binary.BigEndian.Uint32(b[20:24])
	tick.SellQuantity = binary.BigEndian.Uint32(b[24:28])
	tick.DayOpen = price(b, 28, div)
	tick.DayHigh = price(b, 32, div)
	tick.DayLow = price(b, 36, div)
	tick.DayClose = price(b, 40, div)

	if len(b) < packetFullSize {
		return tick, nil
	}

	tick.Mode = ModeFull
	tick.LastTradeTime = unixField(b, 44)
	tick.OI = binary.BigEndian.Uint32(b[48:52])
	tick.ExchangeTime = unixField(b, 60)
	// Remaining 120 bytes are five bid/ask depth levels, not needed for
	// bar construction.

	return tick, nil
}

func price(b []byte, off int, div float64) float64 {
	return float64(int32(binary.BigEndian.Uint32(b[off:off+4]))) / div
}

func unixField(b []byte, off int) time.Time {
	sec := binary.BigEndian.Uint32(b[off : off+4])
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}
