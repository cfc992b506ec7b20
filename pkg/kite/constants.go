package kite

// Subscription modes supported by the ticker. The mode decides the binary
// packet size the server sends for an instrument.
const (
	ModeLTP   = "ltp"
	ModeQuote = "quote"
	ModeFull  = "full"
)

// Binary packet sizes per mode.
const (
	packetLTPSize   = 8
	packetQuoteSize = 44
	packetFullSize  = 184
)

// Exchange segment identifiers, encoded in the low byte of an instrument
// token. The segment decides the price divisor for a packet.
const (
	SegmentNSECM   = 1
	SegmentNSEFO   = 2
	SegmentNSECD   = 3
	SegmentBSECM   = 4
	SegmentBSEFO   = 5
	SegmentBSECD   = 6
	SegmentMCXFO   = 7
	SegmentMCXSX   = 8
	SegmentIndices = 9
)

// priceDivisor converts the wire's integer price representation to rupees.
// Currency derivatives quote to four decimal places, everything else to two.
func priceDivisor(token uint32) float64 {
	switch token & 0xFF {
	case SegmentNSECD:
		return 10000000.0
	case SegmentBSECD:
		return 10000.0
	default:
		return 100.0
	}
}
