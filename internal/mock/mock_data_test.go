package mock

import (
	"testing"
	"time"

	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

func futureExpiry() string {
	return time.Now().AddDate(0, 1, 0).Format("2006-01-02")
}

func TestGetOptionChainShape(t *testing.T) {
	m := NewMockDataProvider()
	chain, err := m.GetOptionChain("NIFTY", futureExpiry())
	if err != nil {
		t.Fatalf("GetOptionChain: %v", err)
	}
	if len(chain) != 82 {
		t.Fatalf("chain size = %d, want 82 (41 strikes, both sides)", len(chain))
	}

	var calls, puts int
	for _, o := range chain {
		switch o.Kind() {
		case models.Call:
			calls++
			if float64(o.Delta) < 0 {
				t.Errorf("call delta negative at strike %v", float64(o.StrikePrice))
			}
		case models.Put:
			puts++
			if float64(o.Delta) > 0 {
				t.Errorf("put delta positive at strike %v", float64(o.StrikePrice))
			}
		}
		if float64(o.LTP) <= 0 {
			t.Errorf("non-positive premium at strike %v", float64(o.StrikePrice))
		}
		if float64(o.UnderlyingValue) <= 0 {
			t.Error("chain entry missing underlying value")
		}
	}
	if calls != 41 || puts != 41 {
		t.Errorf("calls/puts = %d/%d, want 41/41", calls, puts)
	}
}

func TestGetOptionChainRejectsBadExpiry(t *testing.T) {
	m := NewMockDataProvider()
	if _, err := m.GetOptionChain("NIFTY", "soon"); err == nil {
		t.Error("unparsable expiry should fail")
	}
}

func TestGetLTPTracksChainTokens(t *testing.T) {
	m := NewMockDataProvider()
	chain, err := m.GetOptionChain("NIFTY", futureExpiry())
	if err != nil {
		t.Fatalf("GetOptionChain: %v", err)
	}
	token := m.tokenFor(float64(chain[0].StrikePrice), chain[0].OptionType)

	ltp, err := m.GetLTP("NFO", chain[0].TradingSymbol, token)
	if err != nil {
		t.Fatalf("GetLTP: %v", err)
	}
	if ltp <= 0 {
		t.Errorf("ltp = %v, want positive", ltp)
	}

	if _, err := m.GetLTP("NFO", "x", "does-not-exist"); err == nil {
		t.Error("unknown token should fail")
	}
}

func TestGetCandlesWindow(t *testing.T) {
	m := NewMockDataProvider()
	to := time.Now()
	from := to.Add(-30 * time.Minute)

	candles, err := m.GetCandles("250001", "", from, to)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 30 {
		t.Fatalf("got %d candles, want 30", len(candles))
	}
	for _, c := range candles {
		if !c.WellFormed() {
			t.Errorf("malformed candle: %+v", c)
		}
		if c.Volume <= 0 {
			t.Errorf("candle without volume: %+v", c)
		}
	}

	if candles, _ := m.GetCandles("1", "", to, from); candles != nil {
		t.Error("inverted window should yield no candles")
	}
}

func TestSearchScripReflectsChain(t *testing.T) {
	m := NewMockDataProvider()
	if _, err := m.GetOptionChain("NIFTY", futureExpiry()); err != nil {
		t.Fatalf("GetOptionChain: %v", err)
	}
	entries, err := m.SearchScrip("NIFTY25000CE")
	if err != nil {
		t.Fatalf("SearchScrip: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("search should return entries once a chain exists")
	}
	for _, e := range entries {
		if e.Token == "" || e.Strike <= 0 {
			t.Errorf("incomplete entry: %+v", e)
		}
	}
}
