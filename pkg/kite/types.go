package kite

import (
	"encoding/json"
	"time"
)

// APIResponse is the envelope Kite Connect wraps around every REST payload.
type APIResponse struct {
	Status    string          `json:"status"`     // "success" or "error"
	Data      json.RawMessage `json:"data"`       // Delay decoding; varies per endpoint
	Message   string          `json:"message"`    // Human-readable error description
	ErrorType string          `json:"error_type"` // e.g. "TokenException", "InputException"
}

// Session is the payload of a successful POST /session/token exchange.
type Session struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Email       string `json:"email"`
	APIKey      string `json:"api_key"`
	AccessToken string `json:"access_token"`
	PublicToken string `json:"public_token"`
	LoginTime   string `json:"login_time"`
}

// Instrument is one row of the broker's instrument dump.
type Instrument struct {
	Token          uint32  // instrument_token, used for WS subscription
	ExchangeToken  uint32  // exchange_token
	TradingSymbol  string  // e.g. "NIFTY24AUGFUT"
	Name           string  // underlying name
	Expiry         string  // raw expiry date, empty for non-derivatives
	Strike         float64 // strike price, 0 for non-options
	TickSize       float64 // minimum price increment
	LotSize        uint32  // contract lot size
	InstrumentType string  // "EQ", "FUT", "CE", "PE"
	Segment        string  // e.g. "NFO-FUT"
	Exchange       string  // e.g. "NSE", "NFO"
}

// TickData is a decoded market packet before instrument resolution. Prices
// are already scaled to rupees by the segment divisor.
type TickData struct {
	Mode            string
	InstrumentToken uint32
	LastPrice       float64
	LastQuantity    uint32
	AveragePrice    float64
	Volume          uint32
	BuyQuantity     uint32
	SellQuantity    uint32
	DayOpen         float64
	DayHigh         float64
	DayLow          float64
	DayClose        float64
	LastTradeTime   time.Time
	OI              uint32
	ExchangeTime    time.Time
}
