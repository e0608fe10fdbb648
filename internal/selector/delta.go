// Package selector picks strangle legs by delta and hedge candidates by
// strike adjacency from an option chain snapshot.
package selector

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// MarketInputs carries the chain-level context used when an entry has no
// usable delta of its own and one has to be approximated.
type MarketInputs struct {
	Spot         float64
	AvgIV        float64
	YearFraction float64
	RiskFreeRate float64
}

// DeltaSelector picks the call and put whose deltas sit closest to the
// configured target magnitude.
type DeltaSelector struct {
	TargetDelta  float64
	RiskFreeRate float64
	logger       *logrus.Logger
	now          func() time.Time
}

// NewDeltaSelector builds a selector for the given target delta magnitude.
func NewDeltaSelector(targetDelta, riskFreeRate float64, logger *logrus.Logger) *DeltaSelector {
	if logger == nil {
		logger = logrus.New()
	}
	return &DeltaSelector{
		TargetDelta:  targetDelta,
		RiskFreeRate: riskFreeRate,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the selector clock, for tests.
func (s *DeltaSelector) WithClock(now func() time.Time) *DeltaSelector {
	s.now = now
	return s
}

// SelectPair picks the short strangle from a chain snapshot: the call
// closest to +target and the put closest to -target.
func (s *DeltaSelector) SelectPair(chain []broker.ChainOption, expiry string) (*models.Pair, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("empty option chain")
	}
	market := s.deriveMarket(chain, expiry)

	call, err := s.selectLeg(chain, models.Call, s.TargetDelta, market)
	if err != nil {
		return nil, fmt.Errorf("select call: %w", err)
	}
	put, err := s.selectLeg(chain, models.Put, -s.TargetDelta, market)
	if err != nil {
		return nil, fmt.Errorf("select put: %w", err)
	}

	pair := &models.Pair{
		Call:        call,
		Put:         put,
		CallPremium: call.LTP,
		PutPremium:  put.LTP,
		PremiumDiff: math.Abs(call.LTP - put.LTP),
		Distance:    math.Abs(call.Strike - put.Strike),
	}
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"call_strike": call.Strike,
		"call_delta":  call.Delta,
		"put_strike":  put.Strike,
		"put_delta":   put.Delta,
		"spot":        market.Spot,
	}).Info("Selected strangle pair")
	return pair, nil
}

// selectLeg scans one side of the chain for the entry whose (signed) delta
// is nearest the signed target. An entry with no delta of its own gets a
// Black-Scholes approximation from the chain-level market inputs.
func (s *DeltaSelector) selectLeg(chain []broker.ChainOption, kind models.OptionKind, target float64, market MarketInputs) (models.Instrument, error) {
	var best *broker.ChainOption
	var bestDelta, bestDist float64

	for i := range chain {
		o := &chain[i]
		if o.Kind() != kind {
			continue
		}
		delta := float64(o.Delta)
		if delta == 0 {
			delta = blackScholesDelta(market.Spot, float64(o.StrikePrice), market, kind)
		}
		// Sign must agree with the side being sold; a call with a negative
		// delta is chain noise, not a candidate.
		if kind == models.Call && delta < 0 {
			continue
		}
		if kind == models.Put && delta > 0 {
			continue
		}
		d := math.Abs(delta - target)
		if best == nil || d < bestDist {
			best, bestDelta, bestDist = o, delta, d
		}
	}
	if best == nil {
		return models.Instrument{}, fmt.Errorf("no %s candidates with usable delta", kind)
	}
	return models.Instrument{
		Name:          best.Name,
		Expiry:        best.Expiry,
		Strike:        float64(best.StrikePrice),
		Kind:          kind,
		TradingSymbol: best.TradingSymbol,
		Delta:         bestDelta,
		LTP:           float64(best.LTP),
	}, nil
}

// deriveMarket extracts spot, average implied volatility and time to expiry
// from the chain itself, with conservative fallbacks for sparse chains.
func (s *DeltaSelector) deriveMarket(chain []broker.ChainOption, expiry string) MarketInputs {
	var spot float64
	var strikeSum float64
	var ivSum float64
	var ivCount int
	for _, o := range chain {
		if spot == 0 && float64(o.UnderlyingValue) > 0 {
			spot = float64(o.UnderlyingValue)
		}
		strikeSum += float64(o.StrikePrice)
		if iv := float64(o.ImpliedVolatility); iv > 5 && iv < 100 {
			ivSum += iv
			ivCount++
		}
	}
	if spot == 0 && len(chain) > 0 {
		spot = strikeSum / float64(len(chain))
	}
	avgIV := 0.15
	if ivCount > 0 {
		avgIV = ivSum / float64(ivCount) / 100
	}

	days := 1.0
	if exp, err := models.ParseExpiry(expiry); err == nil {
		if d := exp.Sub(s.now()).Hours() / 24; d > days {
			days = d
		}
	}
	return MarketInputs{
		Spot:         spot,
		AvgIV:        avgIV,
		YearFraction: days / 365,
		RiskFreeRate: s.RiskFreeRate,
	}
}

// blackScholesDelta approximates the delta of a European option.
func blackScholesDelta(spot, strike float64, m MarketInputs, kind models.OptionKind) float64 {
	if spot <= 0 || strike <= 0 || m.AvgIV <= 0 || m.YearFraction <= 0 {
		return 0
	}
	d1 := (math.Log(spot/strike) + (m.RiskFreeRate+m.AvgIV*m.AvgIV/2)*m.YearFraction) /
		(m.AvgIV * math.Sqrt(m.YearFraction))
	nd1 := 0.5 * (1 + math.Erf(d1/math.Sqrt2))
	if kind == models.Put {
		return nd1 - 1
	}
	return nd1
}
