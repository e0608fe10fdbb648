package vwap

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
	"github.com/rsharma-dev/nifty-strangler/internal/storage"
)

type candleBroker struct {
	responses []candleResponse
	calls     []broker.CandleInterval
}

type candleResponse struct {
	candles []models.Candle
	err     error
}

func (b *candleBroker) GetCandles(_ string, interval broker.CandleInterval, _, _ time.Time) ([]models.Candle, error) {
	b.calls = append(b.calls, interval)
	idx := len(b.calls) - 1
	if idx >= len(b.responses) {
		return nil, nil
	}
	r := b.responses[idx]
	return r.candles, r.err
}

func (b *candleBroker) GetOptionChain(string, string) ([]broker.ChainOption, error) {
	return nil, errors.New("not implemented")
}
func (b *candleBroker) GetLTP(string, string, string) (float64, error) {
	return 0, errors.New("not implemented")
}
func (b *candleBroker) SearchScrip(string) ([]broker.CatalogEntry, error) {
	return nil, errors.New("not implemented")
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// midSession is a Wednesday 11:00 IST.
var midSession = time.Date(2026, 9, 2, 11, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))

func newTestEngine(b broker.Broker, store storage.Interface) *Engine {
	loc := time.FixedZone("IST", 5*3600+1800)
	return NewEngine(b, store, quietLogger(), loc).WithClock(func() time.Time { return midSession })
}

func bars(vals ...[4]float64) []models.Candle {
	// each entry: high, low, close, volume
	out := make([]models.Candle, 0, len(vals))
	for i, v := range vals {
		out = append(out, models.Candle{
			Time:   midSession.Add(time.Duration(i) * time.Minute),
			Open:   v[2],
			High:   v[0],
			Low:    v[1],
			Close:  v[2],
			Volume: v[3],
		})
	}
	return out
}

func TestComputeVWAP(t *testing.T) {
	// Two bars: tp1=(12+10+11)/3=11, tp2=(14+12+13)/3=13.
	// vwap = (11*100 + 13*300) / 400 = 12.5; last close 13 -> Below.
	b := &candleBroker{responses: []candleResponse{
		{candles: bars([4]float64{12, 10, 11, 100}, [4]float64{14, 12, 13, 300})},
	}}
	res := newTestEngine(b, storage.NewMockStorage()).Compute("43210")

	if res.VWAP == nil {
		t.Fatalf("no vwap computed: %+v", res)
	}
	if math.Abs(*res.VWAP-12.5) > 1e-9 {
		t.Errorf("vwap = %v, want 12.5", *res.VWAP)
	}
	if res.Status != models.VWAPBelow {
		t.Errorf("status = %s, want Below", res.Status)
	}
}

func TestComputeStatusAboveIsStrict(t *testing.T) {
	// Single bar with tp == close -> vwap == lastClose -> Below, not Above.
	b := &candleBroker{responses: []candleResponse{
		{candles: bars([4]float64{10, 10, 10, 100})},
	}}
	res := newTestEngine(b, storage.NewMockStorage()).Compute("43210")
	if res.Status != models.VWAPBelow {
		t.Errorf("tie should classify as Below, got %s", res.Status)
	}

	// Falling close pushes vwap above the last close.
	b = &candleBroker{responses: []candleResponse{
		{candles: bars([4]float64{20, 18, 19, 100}, [4]float64{19, 15, 15, 100})},
	}}
	res = newTestEngine(b, storage.NewMockStorage()).Compute("43210")
	if res.Status != models.VWAPAbove {
		t.Errorf("status = %s, want Above", res.Status)
	}
}

func TestComputeEmptyToken(t *testing.T) {
	res := newTestEngine(&candleBroker{}, storage.NewMockStorage()).Compute("")
	if res.Status != models.VWAPUnknown || res.FailureReason != ReasonTokenNotFound {
		t.Errorf("got %+v, want unknown/token-not-found", res)
	}
}

func TestComputeZeroVolume(t *testing.T) {
	b := &candleBroker{responses: []candleResponse{
		{candles: bars([4]float64{12, 10, 11, 0}, [4]float64{14, 12, 13, 0})},
	}}
	res := newTestEngine(b, storage.NewMockStorage()).Compute("43210")
	if res.FailureReason != ReasonBadCandles {
		t.Errorf("reason = %q, want %q", res.FailureReason, ReasonBadCandles)
	}
}

func TestComputeSkipsMalformedBars(t *testing.T) {
	series := bars([4]float64{12, 10, 11, 100})
	series = append(series, models.Candle{High: 5, Low: 9, Close: 7, Volume: 100}) // high < low
	b := &candleBroker{responses: []candleResponse{{candles: series}}}

	res := newTestEngine(b, storage.NewMockStorage()).Compute("43210")
	if res.VWAP == nil {
		t.Fatalf("expected vwap from the good bar: %+v", res)
	}
	if math.Abs(*res.VWAP-11) > 1e-9 {
		t.Errorf("vwap = %v, want 11 (malformed bar skipped)", *res.VWAP)
	}
}

func TestLadderFallsThroughToWiderWindows(t *testing.T) {
	b := &candleBroker{responses: []candleResponse{
		{err: errors.New("timeout")}, // session minutes
		{candles: nil},               // previous day minutes
		{candles: bars([4]float64{12, 10, 11, 100})}, // monthly hourly
	}}
	res := newTestEngine(b, storage.NewMockStorage()).Compute("43210")

	if res.VWAP == nil {
		t.Fatalf("expected vwap from the hourly tier: %+v", res)
	}
	if len(b.calls) != 3 {
		t.Fatalf("expected 3 ladder calls, got %d", len(b.calls))
	}
	if b.calls[0] != broker.IntervalOneMinute || b.calls[2] != broker.IntervalOneHour {
		t.Errorf("ladder intervals wrong: %v", b.calls)
	}
}

func TestLadderNoCandlesVsAPIError(t *testing.T) {
	// Every tier errors -> api-error.
	b := &candleBroker{responses: []candleResponse{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{err: errors.New("boom")},
	}}
	res := newTestEngine(b, storage.NewMockStorage()).Compute("43210")
	if res.FailureReason != ReasonAPIError {
		t.Errorf("reason = %q, want %q", res.FailureReason, ReasonAPIError)
	}

	// At least one tier answered, just empty -> no-candles.
	b = &candleBroker{responses: []candleResponse{
		{err: errors.New("boom")},
		{candles: nil},
		{candles: nil},
	}}
	res = newTestEngine(b, storage.NewMockStorage()).Compute("43210")
	if res.FailureReason != ReasonNoCandles {
		t.Errorf("reason = %q, want %q", res.FailureReason, ReasonNoCandles)
	}
}

func TestCacheShortCircuitsFetch(t *testing.T) {
	store := storage.NewMockStorage()
	store.SeedCandles("43210", bars([4]float64{12, 10, 11, 100}))
	b := &candleBroker{}

	res := newTestEngine(b, store).Compute("43210")
	if res.VWAP == nil {
		t.Fatalf("expected vwap from cache: %+v", res)
	}
	if len(b.calls) != 0 {
		t.Errorf("cache hit should avoid broker calls, got %d", len(b.calls))
	}
}

func TestSuccessfulFetchIsCached(t *testing.T) {
	store := storage.NewMockStorage()
	b := &candleBroker{responses: []candleResponse{
		{candles: bars([4]float64{12, 10, 11, 100})},
	}}
	if res := newTestEngine(b, store).Compute("43210"); res.VWAP == nil {
		t.Fatalf("compute failed: %+v", res)
	}

	cached, _ := store.LoadCandles("43210")
	if len(cached) != 1 {
		t.Errorf("fetched series should be cached, got %d bars", len(cached))
	}
}
