// Package broker provides the market-data API client the strangle engine
// consumes: option chains with greeks, last traded prices, historical
// candles, and free-text scrip search against the Angel One SmartAPI.
package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// Default endpoints. The search API historically lives on a different host.
const (
	defaultBaseURL   = "https://apiconnect.angelone.in"
	defaultSearchURL = "https://apiconnect.angelbroking.com"

	optionGreekPath = "/rest/secure/angelbroking/marketData/v1/optionGreek"
	ltpDataPath     = "/rest/secure/angelbroking/order/v1/getLtpData"
	candleDataPath  = "/rest/secure/angelbroking/historical/v1/getCandleData"
	searchScripPath = "/rest/secure/angelbroking/order/v1/searchScrip"
)

// CandleInterval selects the bar resolution for historical fetches.
type CandleInterval string

const (
	// IntervalOneMinute is the 1-minute bar resolution.
	IntervalOneMinute CandleInterval = "ONE_MINUTE"
	// IntervalOneHour is the 1-hour bar resolution.
	IntervalOneHour CandleInterval = "ONE_HOUR"
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// FlexFloat is a float64 that unmarshals from a JSON number, a numeric
// string, an empty string, or null. The upstream chain and catalog payloads
// mix all of these; unparsable values decode as zero rather than failing
// the surrounding record.
type FlexFloat float64

// UnmarshalJSON implements lenient numeric decoding.
func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// ChainOption is one quoted entry of the option-greeks chain.
type ChainOption struct {
	Name              string    `json:"name"`
	Expiry            string    `json:"expiry"`
	StrikePrice       FlexFloat `json:"strikePrice"`
	OptionType        string    `json:"optionType"`
	Delta             FlexFloat `json:"delta"`
	Gamma             FlexFloat `json:"gamma"`
	Theta             FlexFloat `json:"theta"`
	Vega              FlexFloat `json:"vega"`
	ImpliedVolatility FlexFloat `json:"impliedVolatility"`
	TradeVolume       FlexFloat `json:"tradeVolume"`
	UnderlyingValue   FlexFloat `json:"underlyingValue"`
	LTP               FlexFloat `json:"ltp"`
	TradingSymbol     string    `json:"tradingsymbol"`
}

// Kind maps the chain entry's option type onto the domain kind.
func (o ChainOption) Kind() models.OptionKind {
	return models.OptionKind(strings.ToUpper(strings.TrimSpace(o.OptionType)))
}

// CatalogEntry is one symbol-catalog record, as returned by the search API
// or read from a locally cached catalog dump. Catalogs are inconsistent
// about field names, so decoding accepts the known aliases.
type CatalogEntry struct {
	TradingSymbol string
	Token         string
	Strike        float64
	OptionType    string
}

// UnmarshalJSON accepts the field-name variants seen across catalog sources.
func (e *CatalogEntry) UnmarshalJSON(b []byte) error {
	var aux struct {
		TradingSymbol string    `json:"tradingsymbol"`
		Symbol        string    `json:"symbol"`
		Scrip         string    `json:"scrip"`
		Name          string    `json:"name"`
		SymbolToken   string    `json:"symboltoken"`
		Token         string    `json:"token"`
		InstrToken    string    `json:"instrumentToken"`
		Strike        FlexFloat `json:"strike"`
		StrikePrice   FlexFloat `json:"strikePrice"`
		InstrumentTyp string    `json:"instrumenttype"`
		OptionType    string    `json:"optionType"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.TradingSymbol = firstNonEmpty(aux.TradingSymbol, aux.Symbol, aux.Scrip, aux.Name)
	e.Token = firstNonEmpty(aux.SymbolToken, aux.Token, aux.InstrToken)
	e.Strike = float64(aux.Strike)
	if e.Strike == 0 {
		e.Strike = float64(aux.StrikePrice)
	}
	e.OptionType = firstNonEmpty(aux.InstrumentTyp, aux.OptionType)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Credentials carries the already-issued Angel One session material.
// Session issuance (login/TOTP) is out of scope; the engine only consumes.
type Credentials struct {
	JWTToken   string
	PrivateKey string
	ClientCode string
	LocalIP    string
	PublicIP   string
	MACAddress string
	UserType   string
	SourceID   string
}

// AngelAPI is the concrete SmartAPI client.
type AngelAPI struct {
	client    *http.Client
	creds     Credentials
	baseURL   string
	searchURL string
	timeout   time.Duration
}

// NewAngelAPI creates a client with default endpoints and a 20s timeout.
func NewAngelAPI(creds Credentials) *AngelAPI {
	const defaultTimeout = 20 * time.Second
	return &AngelAPI{
		client:    &http.Client{Timeout: defaultTimeout},
		creds:     creds,
		baseURL:   defaultBaseURL,
		searchURL: defaultSearchURL,
		timeout:   defaultTimeout,
	}
}

// WithBaseURLs overrides the API hosts (tests, proxies). Empty values keep
// the current endpoints.
func (a *AngelAPI) WithBaseURLs(base, search string) *AngelAPI {
	if base != "" {
		a.baseURL = strings.TrimRight(base, "/")
	}
	if search != "" {
		a.searchURL = strings.TrimRight(search, "/")
	}
	return a
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (a *AngelAPI) WithHTTPClient(c *http.Client) *AngelAPI {
	if c != nil {
		a.client = c
	}
	return a
}

// WithTimeout sets the HTTP client timeout duration.
func (a *AngelAPI) WithTimeout(timeout time.Duration) *AngelAPI {
	a.timeout = timeout
	if a.client != nil {
		a.client.Timeout = timeout
	}
	return a
}

func (a *AngelAPI) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if a.creds.JWTToken != "" {
		h.Set("Authorization", "Bearer "+a.creds.JWTToken)
	}
	h.Set("X-PrivateKey", a.creds.PrivateKey)
	h.Set("X-SourceID", orDefault(a.creds.SourceID, "WEB"))
	h.Set("X-UserType", orDefault(a.creds.UserType, "USER"))
	h.Set("X-ClientLocalIP", orDefault(a.creds.LocalIP, "127.0.0.1"))
	h.Set("X-ClientPublicIP", orDefault(a.creds.PublicIP, "127.0.0.1"))
	h.Set("X-MACAddress", orDefault(a.creds.MACAddress, "00:00:00:00:00:00"))
	if a.creds.ClientCode != "" {
		h.Set("X-UserID", a.creds.ClientCode)
	}
	return h
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// angelEnvelope is the common SmartAPI response wrapper.
type angelEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// doPost executes a JSON POST and decodes the SmartAPI envelope. A non-2xx
// status yields an *APIError; a success=false envelope yields a plain error
// carrying the upstream message.
func (a *AngelAPI) doPost(url string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header = a.headers()

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	var env angelEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !env.Status {
		return nil, fmt.Errorf("api rejected request: %s (%s)", env.Message, env.ErrorCode)
	}
	return env.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// GetOptionChain fetches the quoted greeks chain for an underlying/expiry.
func (a *AngelAPI) GetOptionChain(name, expiry string) ([]ChainOption, error) {
	data, err := a.doPost(a.baseURL+optionGreekPath, map[string]string{
		"name":       name,
		"expirydate": expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching option chain for %s %s: %w", name, expiry, err)
	}
	var chain []ChainOption
	if len(data) > 0 {
		if err := json.Unmarshal(data, &chain); err != nil {
			return nil, fmt.Errorf("decoding option chain: %w", err)
		}
	}
	return chain, nil
}

// GetLTP fetches the last traded price for a resolved instrument.
func (a *AngelAPI) GetLTP(exchange, tradingSymbol, token string) (float64, error) {
	data, err := a.doPost(a.baseURL+ltpDataPath, map[string]string{
		"exchange":      exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   token,
	})
	if err != nil {
		return 0, fmt.Errorf("fetching ltp for %s: %w", tradingSymbol, err)
	}
	var out struct {
		LTP FlexFloat `json:"ltp"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return 0, fmt.Errorf("decoding ltp: %w", err)
		}
	}
	return float64(out.LTP), nil
}

// GetCandles fetches historical bars for a token. Individual malformed rows
// are skipped; the returned series preserves upstream order.
func (a *AngelAPI) GetCandles(token string, interval CandleInterval, from, to time.Time) ([]models.Candle, error) {
	exchange := "NSE"
	if isDigits(token) {
		exchange = "NFO"
	}
	data, err := a.doPost(a.baseURL+candleDataPath, map[string]string{
		"exchange":    exchange,
		"symboltoken": token,
		"interval":    string(interval),
		"fromdate":    from.Format("2006-01-02 15:04"),
		"todate":      to.Format("2006-01-02 15:04"),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching candles for token %s: %w", token, err)
	}

	var rows []json.RawMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("decoding candle rows: %w", err)
		}
	}
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if c, ok := parseCandleRow(row); ok {
			candles = append(candles, c)
		}
	}
	return candles, nil
}

// parseCandleRow decodes one [timestamp, o, h, l, c, v] array row.
func parseCandleRow(row json.RawMessage) (models.Candle, bool) {
	var cols []json.RawMessage
	if err := json.Unmarshal(row, &cols); err != nil || len(cols) < 6 {
		return models.Candle{}, false
	}
	var ts string
	if err := json.Unmarshal(cols[0], &ts); err != nil {
		return models.Candle{}, false
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return models.Candle{}, false
	}
	var vals [5]FlexFloat
	for i := 0; i < 5; i++ {
		if err := json.Unmarshal(cols[i+1], &vals[i]); err != nil {
			return models.Candle{}, false
		}
	}
	return models.Candle{
		Time:   t,
		Open:   float64(vals[0]),
		High:   float64(vals[1]),
		Low:    float64(vals[2]),
		Close:  float64(vals[3]),
		Volume: float64(vals[4]),
	}, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SearchScrip queries the free-text symbol catalog (NFO segment).
func (a *AngelAPI) SearchScrip(query string) ([]CatalogEntry, error) {
	data, err := a.doPost(a.searchURL+searchScripPath, map[string]string{
		"exchange":    "NFO",
		"searchscrip": query,
	})
	if err != nil {
		return nil, fmt.Errorf("searching catalog for %q: %w", query, err)
	}
	var entries []CatalogEntry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decoding search results: %w", err)
		}
	}
	return entries, nil
}
