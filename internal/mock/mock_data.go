// Package mock provides a synthetic market-data provider for paper trading.
package mock

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// MockDataProvider simulates the broker surface with a drifting index level
// and a synthetic option chain around it.
type MockDataProvider struct {
	spot   float64
	midIV  float64
	tokens map[string]float64
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewMockDataProvider seeds a provider around a NIFTY-like index level.
func NewMockDataProvider() *MockDataProvider {
	return &MockDataProvider{
		spot:   25000 + secureFloat64()*200,
		midIV:  12 + secureFloat64()*8,
		tokens: make(map[string]float64),
	}
}

// Ensure the provider satisfies the broker surface.
var _ broker.Broker = (*MockDataProvider)(nil)

const strikeStep = 50

// GetOptionChain builds a synthetic chain of 41 strikes around spot with
// Black-Scholes-flavored deltas and premiums.
func (m *MockDataProvider) GetOptionChain(name, expiry string) ([]broker.ChainOption, error) {
	exp, err := models.ParseExpiry(expiry)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry: %w", err)
	}
	days := time.Until(exp).Hours() / 24
	if days < 1 {
		days = 1
	}
	t := days / 365
	sigma := m.midIV / 100

	m.drift()
	atm := math.Round(m.spot/strikeStep) * strikeStep

	var chain []broker.ChainOption
	for i := -20; i <= 20; i++ {
		strike := atm + float64(i)*strikeStep
		d1 := (math.Log(m.spot/strike) + (0.07+sigma*sigma/2)*t) / (sigma * math.Sqrt(t))
		callDelta := 0.5 * (1 + math.Erf(d1/math.Sqrt2))
		putDelta := callDelta - 1

		callPrem := math.Max(m.spot-strike, 0) + m.spot*sigma*math.Sqrt(t)*0.4*math.Exp(-d1*d1/2)
		putPrem := callPrem - (m.spot - strike)
		if putPrem < 0.05 {
			putPrem = 0.05
		}
		if callPrem < 0.05 {
			callPrem = 0.05
		}

		for _, side := range []struct {
			kind  string
			delta float64
			prem  float64
		}{
			{"CE", callDelta, callPrem},
			{"PE", putDelta, putPrem},
		} {
			token := m.tokenFor(strike, side.kind)
			m.tokens[token] = side.prem
			chain = append(chain, broker.ChainOption{
				Name:              name,
				Expiry:            expiry,
				StrikePrice:       broker.FlexFloat(strike),
				OptionType:        side.kind,
				Delta:             broker.FlexFloat(side.delta),
				ImpliedVolatility: broker.FlexFloat(m.midIV),
				UnderlyingValue:   broker.FlexFloat(m.spot),
				LTP:               broker.FlexFloat(round2(side.prem)),
				TradingSymbol:     fmt.Sprintf("%s%s%d%s", name, expiryTag(exp), int(strike), side.kind),
			})
		}
	}
	return chain, nil
}

// GetLTP returns the last synthetic premium for a token with a small wiggle.
func (m *MockDataProvider) GetLTP(_, _, token string) (float64, error) {
	prem, ok := m.tokens[token]
	if !ok {
		return 0, fmt.Errorf("unknown token %q", token)
	}
	prem *= 1 + (secureFloat64()-0.5)*0.04
	m.tokens[token] = prem
	return round2(prem), nil
}

// GetCandles fabricates a minute series for the window, priced around the
// token's premium with volume.
func (m *MockDataProvider) GetCandles(token string, _ broker.CandleInterval, from, to time.Time) ([]models.Candle, error) {
	base, ok := m.tokens[token]
	if !ok {
		base = 100 + secureFloat64()*50
	}
	if !to.After(from) {
		return nil, nil
	}
	n := int(to.Sub(from) / time.Minute)
	if n > 120 {
		n = 120
	}
	if n == 0 {
		n = 1
	}
	candles := make([]models.Candle, 0, n)
	price := base
	for i := 0; i < n; i++ {
		move := (secureFloat64() - 0.5) * base * 0.01
		open := price
		close := price + move
		high := math.Max(open, close) * 1.002
		low := math.Min(open, close) * 0.998
		candles = append(candles, models.Candle{
			Time:   from.Add(time.Duration(i) * time.Minute),
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(close),
			Volume: 100 + secureFloat64()*1000,
		})
		price = close
	}
	return candles, nil
}

// SearchScrip answers every query with entries for the strikes the chain
// has produced so far.
func (m *MockDataProvider) SearchScrip(query string) ([]broker.CatalogEntry, error) {
	var entries []broker.CatalogEntry
	for token := range m.tokens {
		strike, kind := m.parseToken(token)
		entries = append(entries, broker.CatalogEntry{
			TradingSymbol: query,
			Token:         token,
			Strike:        strike,
			OptionType:    kind,
		})
	}
	return entries, nil
}

func (m *MockDataProvider) drift() {
	m.spot += (secureFloat64() - 0.5) * 30
}

func (m *MockDataProvider) tokenFor(strike float64, kind string) string {
	suffix := "1"
	if kind == "PE" {
		suffix = "2"
	}
	return strconv.Itoa(int(strike)) + suffix
}

func (m *MockDataProvider) parseToken(token string) (float64, string) {
	if len(token) < 2 {
		return 0, ""
	}
	kind := "CE"
	if token[len(token)-1] == '2' {
		kind = "PE"
	}
	strike, _ := strconv.ParseFloat(token[:len(token)-1], 64)
	return strike, kind
}

func expiryTag(t time.Time) string {
	return t.Format("02Jan06")
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
