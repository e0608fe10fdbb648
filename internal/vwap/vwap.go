// Package vwap computes the volume-weighted average price of an option leg
// from intraday candles and classifies the live price against it.
package vwap

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
	"github.com/rsharma-dev/nifty-strangler/internal/storage"
)

// Failure reasons recorded on a leg when no VWAP could be computed.
const (
	ReasonNoInstrument  = "no-instrument"
	ReasonTokenNotFound = "token-not-found"
	ReasonAPIError      = "api-error"
	ReasonNoCandles     = "no-candles"
	ReasonBadCandles    = "no-volume-or-bad-candles"
)

// Session bounds in exchange local time.
const (
	sessionOpenHour   = 9
	sessionOpenMinute = 15
	sessionCloseHour  = 15
	sessionCloseMin   = 30
)

// Result is the outcome of a VWAP computation for one token.
type Result struct {
	VWAP          *float64
	Status        models.VWAPStatus
	FailureReason string
}

// Engine fetches candles through a ladder of windows, caching hits, and
// computes VWAP from the first non-empty series.
type Engine struct {
	broker broker.Broker
	store  storage.Interface
	logger *logrus.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewEngine builds a VWAP engine. A nil location falls back to UTC.
func NewEngine(b broker.Broker, store storage.Interface, logger *logrus.Logger, loc *time.Location) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{broker: b, store: store, logger: logger, loc: loc, now: time.Now}
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Compute resolves candles for a token and returns its VWAP classification.
// Fetch errors on one ladder tier never block the next; the failure reason
// distinguishes "every tier errored" from "tiers answered but empty".
func (e *Engine) Compute(token string) Result {
	if token == "" {
		return Result{Status: models.VWAPUnknown, FailureReason: ReasonTokenNotFound}
	}

	candles, reason := e.candles(token)
	if len(candles) == 0 {
		return Result{Status: models.VWAPUnknown, FailureReason: reason}
	}

	var sumPV, sumV float64
	var lastClose float64
	var haveBar bool
	for _, c := range candles {
		if !c.WellFormed() {
			continue
		}
		sumPV += c.TypicalPrice() * c.Volume
		sumV += c.Volume
		lastClose = c.Close
		haveBar = true
	}
	if !haveBar || sumV == 0 {
		return Result{Status: models.VWAPUnknown, FailureReason: ReasonBadCandles}
	}

	v := sumPV / sumV
	status := models.VWAPBelow
	if v > lastClose {
		status = models.VWAPAbove
	}
	return Result{VWAP: &v, Status: status}
}

// window is one tier of the candle-fetch ladder.
type window struct {
	name     string
	interval broker.CandleInterval
	from, to time.Time
}

// candles walks cache, today's session minutes, the previous day's minutes,
// and a 30-day hourly window, returning the first non-empty series.
func (e *Engine) candles(token string) ([]models.Candle, string) {
	if cached, err := e.store.LoadCandles(token); err == nil && len(cached) > 0 {
		return cached, ""
	}

	now := e.now().In(e.loc)
	windows := []window{
		e.sessionWindow(now),
		e.previousDayWindow(now),
		{
			name:     "monthly-hourly",
			interval: broker.IntervalOneHour,
			from:     now.AddDate(0, 0, -30),
			to:       now,
		},
	}

	sawEmpty := false
	for _, w := range windows {
		candles, err := e.broker.GetCandles(token, w.interval, w.from, w.to)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"token":  token,
				"window": w.name,
			}).WithError(err).Warn("Candle fetch failed, trying wider window")
			continue
		}
		if len(candles) == 0 {
			sawEmpty = true
			continue
		}
		if err := e.store.SaveCandles(token, candles); err != nil {
			e.logger.WithError(err).Warn("Failed to cache candles")
		}
		return candles, ""
	}
	if sawEmpty {
		return nil, ReasonNoCandles
	}
	return nil, ReasonAPIError
}

func (e *Engine) sessionWindow(now time.Time) window {
	open := time.Date(now.Year(), now.Month(), now.Day(), sessionOpenHour, sessionOpenMinute, 0, 0, e.loc)
	close := time.Date(now.Year(), now.Month(), now.Day(), sessionCloseHour, sessionCloseMin, 0, 0, e.loc)

	from, to := open, now
	if now.After(close) {
		to = close
	}
	if !now.After(open) {
		// Before the open there is no session yet; ask for the trailing hour
		// so overnight and pre-open prints still produce a series.
		from = now.Add(-60 * time.Minute)
		to = now
	}
	return window{name: "session-minutes", interval: broker.IntervalOneMinute, from: from, to: to}
}

func (e *Engine) previousDayWindow(now time.Time) window {
	prev := now.AddDate(0, 0, -1)
	from := time.Date(prev.Year(), prev.Month(), prev.Day(), sessionOpenHour, sessionOpenMinute, 0, 0, e.loc)
	to := time.Date(prev.Year(), prev.Month(), prev.Day(), sessionCloseHour, sessionCloseMin, 0, 0, e.loc)
	return window{name: "previous-day-minutes", interval: broker.IntervalOneMinute, from: from, to: to}
}

// Summarize builds the per-leg summary recorded alongside the pair.
func Summarize(res Result) models.VWAPLegSummary {
	return models.VWAPLegSummary{VWAP: res.VWAP, Status: res.Status}
}
