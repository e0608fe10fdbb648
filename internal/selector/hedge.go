package selector

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// maxHedgeLegs caps the candidates kept per side.
const maxHedgeLegs = 2

// HedgeSelector finds protective buys around the sold strikes: same-kind
// entries priced exactly Step away from the sold strike on either side,
// topped up from the nearest remaining strikes.
type HedgeSelector struct {
	Step   int
	logger *logrus.Logger
}

// NewHedgeSelector builds a hedge selector with the given price offset.
func NewHedgeSelector(step int, logger *logrus.Logger) *HedgeSelector {
	if logger == nil {
		logger = logrus.New()
	}
	return &HedgeSelector{Step: step, logger: logger}
}

// Select picks hedge candidates for both legs of a pair from a chain
// snapshot. It is pure over the chain: token resolution and fresh pricing
// are the caller's concern.
func (s *HedgeSelector) Select(chain []broker.ChainOption, pair *models.Pair) *models.HedgeSet {
	set := &models.HedgeSet{
		Call: s.selectSide(chain, models.Call, pair.Call.Strike),
		Put:  s.selectSide(chain, models.Put, pair.Put.Strike),
	}
	set.Cost = set.TotalCost()
	return set
}

// selectSide gathers candidates priced at exactly soldStrike-step and
// soldStrike+step, then tops up from the nearest remaining strikes until
// two legs are held. Entries whose delta sign contradicts the side are
// dropped; a zero delta passes.
func (s *HedgeSelector) selectSide(chain []broker.ChainOption, kind models.OptionKind, soldStrike float64) []models.HedgeLeg {
	sold := int64(soldStrike)
	legs := collectAtStrikes(chain, kind, sold-int64(s.Step), sold+int64(s.Step))
	if len(legs) < maxHedgeLegs {
		legs = s.fillNearest(chain, kind, soldStrike, legs)
	}
	if len(legs) > maxHedgeLegs {
		legs = legs[:maxHedgeLegs]
	}
	if len(legs) == 0 {
		s.logger.WithFields(logrus.Fields{
			"kind":        kind,
			"sold_strike": soldStrike,
		}).Warn("No hedge candidates found")
	}
	return legs
}

// fillNearest tops the leg list up to maxHedgeLegs from the side's entries
// ranked by absolute strike distance from the sold strike, skipping the sold
// strike itself and strikes already held.
func (s *HedgeSelector) fillNearest(chain []broker.ChainOption, kind models.OptionKind, soldStrike float64, legs []models.HedgeLeg) []models.HedgeLeg {
	type scored struct {
		leg  models.HedgeLeg
		dist float64
	}
	seen := map[int64]struct{}{int64(soldStrike): {}}
	for _, l := range legs {
		seen[int64(l.Strike)] = struct{}{}
	}

	var candidates []scored
	for _, o := range chain {
		if o.Kind() != kind {
			continue
		}
		strike := float64(o.StrikePrice)
		if _, held := seen[int64(strike)]; held {
			continue
		}
		if !deltaSignOK(float64(o.Delta), kind) {
			continue
		}
		candidates = append(candidates, scored{
			leg:  toHedgeLeg(o, kind),
			dist: math.Abs(strike - soldStrike),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	for _, c := range candidates {
		key := int64(c.leg.Strike)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		legs = append(legs, c.leg)
		if len(legs) == maxHedgeLegs {
			break
		}
	}
	return legs
}

// collectAtStrikes gathers every side entry at the given strike levels,
// keeping only entries whose delta sign agrees with the side.
func collectAtStrikes(chain []broker.ChainOption, kind models.OptionKind, strikes ...int64) []models.HedgeLeg {
	var legs []models.HedgeLeg
	for _, o := range chain {
		if o.Kind() != kind {
			continue
		}
		if !deltaSignOK(float64(o.Delta), kind) {
			continue
		}
		entry := int64(float64(o.StrikePrice))
		for _, strike := range strikes {
			if entry == strike {
				legs = append(legs, toHedgeLeg(o, kind))
				break
			}
		}
	}
	return legs
}

// deltaSignOK rejects chain entries whose reported delta has the wrong sign
// for their side. A zero delta is indistinguishable from missing data and
// passes.
func deltaSignOK(delta float64, kind models.OptionKind) bool {
	if delta == 0 {
		return true
	}
	if kind == models.Put && delta > 0 {
		return false
	}
	if kind == models.Call && delta < 0 {
		return false
	}
	return true
}

func toHedgeLeg(o broker.ChainOption, kind models.OptionKind) models.HedgeLeg {
	return models.HedgeLeg{
		Strike:        float64(o.StrikePrice),
		LTP:           float64(o.LTP),
		Delta:         float64(o.Delta),
		Kind:          kind,
		TradingSymbol: o.TradingSymbol,
	}
}
