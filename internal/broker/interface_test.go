package broker

import (
	"errors"
	"testing"
	"time"

	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

type countingBroker struct {
	calls int
	err   error
}

func (b *countingBroker) GetOptionChain(string, string) ([]ChainOption, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return []ChainOption{{Name: "NIFTY"}}, nil
}

func (b *countingBroker) GetLTP(string, string, string) (float64, error) {
	b.calls++
	if b.err != nil {
		return 0, b.err
	}
	return 118.45, nil
}

func (b *countingBroker) GetCandles(string, CandleInterval, time.Time, time.Time) ([]models.Candle, error) {
	b.calls++
	return nil, b.err
}

func (b *countingBroker) SearchScrip(string) ([]CatalogEntry, error) {
	b.calls++
	return []CatalogEntry{{Token: "1"}}, b.err
}

func TestCircuitBreakerPassthrough(t *testing.T) {
	inner := &countingBroker{}
	cb := NewCircuitBreakerBroker(inner)

	ltp, err := cb.GetLTP("NFO", "X", "1")
	if err != nil {
		t.Fatalf("GetLTP: %v", err)
	}
	if ltp != 118.45 {
		t.Errorf("ltp = %v, want 118.45", ltp)
	}

	chain, err := cb.GetOptionChain("NIFTY", "2026-09-29")
	if err != nil || len(chain) != 1 {
		t.Errorf("GetOptionChain = (%v, %v)", chain, err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	inner := &countingBroker{err: errors.New("boom")}
	cb := NewCircuitBreakerBrokerWithSettings(inner, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	})

	for i := 0; i < 3; i++ {
		if _, err := cb.GetLTP("NFO", "X", "1"); err == nil {
			t.Fatal("expected failure")
		}
	}
	callsWhenOpen := inner.calls

	// The breaker is open now: calls fail fast without reaching the broker.
	if _, err := cb.GetLTP("NFO", "X", "1"); err == nil {
		t.Fatal("open breaker should fail")
	}
	if inner.calls != callsWhenOpen {
		t.Errorf("open breaker still reached the broker (%d -> %d calls)", callsWhenOpen, inner.calls)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Status: 429, Body: "rate limited"}
	if err.Error() != "API error 429: rate limited" {
		t.Errorf("Error() = %q", err.Error())
	}
}
