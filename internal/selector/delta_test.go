package selector

import (
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func chainEntry(kind string, strike, delta, ltp float64) broker.ChainOption {
	return broker.ChainOption{
		Name:            "NIFTY",
		Expiry:          "2026-09-29",
		StrikePrice:     broker.FlexFloat(strike),
		OptionType:      kind,
		Delta:           broker.FlexFloat(delta),
		LTP:             broker.FlexFloat(ltp),
		UnderlyingValue: broker.FlexFloat(25000),
		TradingSymbol:   kind + "-sym",
	}
}

func testClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC) }
}

func TestSelectPairPicksClosestDeltas(t *testing.T) {
	chain := []broker.ChainOption{
		chainEntry("CE", 25500, 0.31, 150),
		chainEntry("CE", 25800, 0.21, 90),
		chainEntry("CE", 26100, 0.12, 45),
		chainEntry("PE", 24500, -0.30, 140),
		chainEntry("PE", 24200, -0.19, 85),
		chainEntry("PE", 23900, -0.11, 40),
	}
	s := NewDeltaSelector(0.20, 0.07, quietLogger()).WithClock(testClock())

	pair, err := s.SelectPair(chain, "2026-09-29")
	if err != nil {
		t.Fatalf("SelectPair: %v", err)
	}
	if pair.Call.Strike != 25800 {
		t.Errorf("call strike = %v, want 25800", pair.Call.Strike)
	}
	if pair.Put.Strike != 24200 {
		t.Errorf("put strike = %v, want 24200", pair.Put.Strike)
	}
	if pair.CallPremium != 90 || pair.PutPremium != 85 {
		t.Errorf("premiums = %v/%v, want 90/85", pair.CallPremium, pair.PutPremium)
	}
	if pair.PremiumDiff != 5 {
		t.Errorf("premium diff = %v, want 5", pair.PremiumDiff)
	}
	if pair.Distance != 1600 {
		t.Errorf("distance = %v, want 1600", pair.Distance)
	}
}

func TestSelectPairIgnoresWrongSignDeltas(t *testing.T) {
	chain := []broker.ChainOption{
		chainEntry("CE", 25800, -0.20, 90), // noise: negative call delta
		chainEntry("CE", 26100, 0.15, 45),
		chainEntry("PE", 24200, 0.20, 85), // noise: positive put delta
		chainEntry("PE", 23900, -0.15, 40),
	}
	s := NewDeltaSelector(0.20, 0.07, quietLogger()).WithClock(testClock())

	pair, err := s.SelectPair(chain, "2026-09-29")
	if err != nil {
		t.Fatalf("SelectPair: %v", err)
	}
	if pair.Call.Strike != 26100 {
		t.Errorf("call strike = %v, want 26100 (wrong-sign entry skipped)", pair.Call.Strike)
	}
	if pair.Put.Strike != 23900 {
		t.Errorf("put strike = %v, want 23900 (wrong-sign entry skipped)", pair.Put.Strike)
	}
}

func TestSelectPairEmptyChain(t *testing.T) {
	s := NewDeltaSelector(0.20, 0.07, quietLogger())
	if _, err := s.SelectPair(nil, "2026-09-29"); err == nil {
		t.Error("empty chain should fail")
	}
}

func TestSelectPairOneSidedChain(t *testing.T) {
	chain := []broker.ChainOption{chainEntry("CE", 25800, 0.21, 90)}
	s := NewDeltaSelector(0.20, 0.07, quietLogger()).WithClock(testClock())
	if _, err := s.SelectPair(chain, "2026-09-29"); err == nil {
		t.Error("chain without puts should fail")
	}
}

func TestSelectPairFallsBackToTheoreticalDelta(t *testing.T) {
	// No entry carries a delta; the approximation must rank OTM entries
	// below ATM ones so a 0.5-target pair lands near the money.
	mkEntry := func(kind string, strike, iv float64) broker.ChainOption {
		e := chainEntry(kind, strike, 0, 50)
		e.ImpliedVolatility = broker.FlexFloat(iv)
		return e
	}
	chain := []broker.ChainOption{
		mkEntry("CE", 25000, 15),
		mkEntry("CE", 26500, 15),
		mkEntry("PE", 25000, 15),
		mkEntry("PE", 23500, 15),
	}
	s := NewDeltaSelector(0.50, 0.07, quietLogger()).WithClock(testClock())

	pair, err := s.SelectPair(chain, "2026-09-29")
	if err != nil {
		t.Fatalf("SelectPair: %v", err)
	}
	if pair.Call.Strike != 25000 || pair.Put.Strike != 25000 {
		t.Errorf("strikes = %v/%v, want ATM 25000 for 0.5 target",
			pair.Call.Strike, pair.Put.Strike)
	}
	if pair.Call.Delta <= 0 || pair.Put.Delta >= 0 {
		t.Errorf("approximated deltas have wrong signs: %v/%v",
			pair.Call.Delta, pair.Put.Delta)
	}
}

func TestBlackScholesDelta(t *testing.T) {
	m := MarketInputs{Spot: 100, AvgIV: 0.2, YearFraction: 30.0 / 365, RiskFreeRate: 0.07}

	atmCall := blackScholesDelta(100, 100, m, models.Call)
	if atmCall < 0.5 || atmCall > 0.6 {
		t.Errorf("ATM call delta = %v, want slightly above 0.5", atmCall)
	}

	atmPut := blackScholesDelta(100, 100, m, models.Put)
	if math.Abs(atmCall-1-atmPut) > 1e-12 {
		t.Errorf("put-call delta identity broken: call %v put %v", atmCall, atmPut)
	}

	deepOTMCall := blackScholesDelta(100, 150, m, models.Call)
	if deepOTMCall > 0.01 {
		t.Errorf("deep OTM call delta = %v, want near zero", deepOTMCall)
	}

	if got := blackScholesDelta(0, 100, m, models.Call); got != 0 {
		t.Errorf("degenerate inputs should yield 0, got %v", got)
	}
}
