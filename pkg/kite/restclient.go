package kite

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiVersionHeader = "3"

// RESTClient talks to the Kite Connect HTTP API: session lifecycle and the
// instrument master dump.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// SessionChecksum computes the SHA-256 checksum the token exchange expects.
func SessionChecksum(apiKey, requestToken, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))
	return hex.EncodeToString(sum[:])
}

// CreateSession exchanges a login request token for an access token via
// POST /session/token.
func (c *RESTClient) CreateSession(ctx context.Context, apiKey, requestToken, apiSecret string) (*Session, error) {
	form := url.Values{}
	form.Set("api_key", apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", SessionChecksum(apiKey, requestToken, apiSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/session/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Kite-Version", apiVersionHeader)

	var session Session
	if err := c.doJSON(req, &session); err != nil {
		return nil, fmt.Errorf("session token exchange: %w", err)
	}
	return &session, nil
}

// InvalidateSession revokes an access token via DELETE /session/token.
func (c *RESTClient) InvalidateSession(ctx context.Context, apiKey, accessToken string) error {
	endpoint := fmt.Sprintf("%s/session/token?api_key=%s&access_token=%s",
		c.baseURL, url.QueryEscape(apiKey), url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Kite-Version", apiVersionHeader)

	var ok bool
	if err := c.doJSON(req, &ok); err != nil {
		return fmt.Errorf("session invalidation: %w", err)
	}
	return nil
}

// GetInstruments fetches the full instrument dump (CSV over REST) and
// parses it into Instrument records.
func (c *RESTClient) GetInstruments(ctx context.Context) ([]Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/instruments", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Kite-Version", apiVersionHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kite error: %s", body)
	}

	return ParseInstrumentsCSV(resp.Body)
}

// ParseInstrumentsCSV decodes the instrument dump. Rows with malformed
// numeric fields are skipped rather than failing the whole dump.
//
// Columns: instrument_token, exchange_token, tradingsymbol, name,
// last_price, expiry, strike, tick_size, lot_size, instrument_type,
// segment, exchange.
func ParseInstrumentsCSV(r io.Reader) ([]Instrument, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate trailing columns

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode instruments csv: %w", err)
	}

	var out []Instrument
	for i, row := range rows {
		if i == 0 || len(row) < 12 {
			continue // header or incomplete row
		}

		token, err := strconv.ParseUint(row[0], 10, 32)
		if err != nil {
			continue
		}
		exchangeToken, err := strconv.ParseUint(row[1], 10, 32)
		if err != nil {
			continue
		}
		strike, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			continue
		}
		tickSize, err := strconv.ParseFloat(row[7], 64)
		if err != nil {
			continue
		}
		lotSize, err := strconv.ParseUint(row[8], 10, 32)
		if err != nil {
			continue
		}

		out = append(out, Instrument{
			Token:          uint32(token),
			ExchangeToken:  uint32(exchangeToken),
			TradingSymbol:  row[2],
			Name:           row[3],
			Expiry:         row[5],
			Strike:         strike,
			TickSize:       tickSize,
			LotSize:        uint32(lotSize),
			InstrumentType: row[9],
			Segment:        row[10],
			Exchange:       row[11],
		})
	}
	return out, nil
}

// doJSON executes the request and unwraps the Kite response envelope.
func (c *RESTClient) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if envelope.Status != "success" {
		return fmt.Errorf("kite error (%s): %s", envelope.ErrorType, envelope.Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
