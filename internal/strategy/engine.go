// Package strategy drives the short-strangle lifecycle: select the pair
// once, then on every cycle refresh hedge candidates, classify each leg
// against its VWAP, recompute the risk snapshot, and hedge or exit.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/config"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
	"github.com/rsharma-dev/nifty-strangler/internal/resolver"
	"github.com/rsharma-dev/nifty-strangler/internal/selector"
	"github.com/rsharma-dev/nifty-strangler/internal/storage"
	"github.com/rsharma-dev/nifty-strangler/internal/util"
	"github.com/rsharma-dev/nifty-strangler/internal/vwap"
)

// hedgeReasonVWAPBelow is the reason recorded on every hedge entry fired by
// the VWAP trigger.
const hedgeReasonVWAPBelow = "VWAP_Below"

// exchangeNFO is the derivatives segment quotes are fetched from.
const exchangeNFO = "NFO"

// ErrStrategyExited is returned by RunCycle once the phase is terminal.
var ErrStrategyExited = errors.New("strategy has exited")

// VWAPEngine abstracts the VWAP computation so cycle tests can stub it.
type VWAPEngine interface {
	Compute(token string) vwap.Result
}

// Engine wires selection, resolution, VWAP classification and risk
// evaluation into one evaluation cycle over persistent state.
type Engine struct {
	cfg      *config.Config
	broker   broker.Broker
	store    storage.Interface
	resolver *resolver.Resolver
	vwap     VWAPEngine
	deltaSel *selector.DeltaSelector
	hedgeSel *selector.HedgeSelector
	logger   *logrus.Logger
	now      func() time.Time
}

// NewEngine assembles a strategy engine from its collaborators.
func NewEngine(cfg *config.Config, b broker.Broker, store storage.Interface,
	res *resolver.Resolver, vw VWAPEngine, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		cfg:      cfg,
		broker:   b,
		store:    store,
		resolver: res,
		vwap:     vw,
		deltaSel: selector.NewDeltaSelector(cfg.Strategy.TargetDelta, cfg.Strategy.RiskFreeRate, logger),
		hedgeSel: selector.NewHedgeSelector(int(cfg.Strategy.HedgeStep), logger),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RunCycle performs one full evaluation. The exit check runs before the
// hedge trigger: a cycle that breaches the loss cap exits and records no
// hedge. Returns ErrStrategyExited once the phase is terminal.
func (e *Engine) RunCycle() error {
	machine := models.NewPhaseMachineFromState(e.store.GetPhase())
	if machine.IsTerminal() {
		e.logger.Info("Strategy is terminal, skipping cycle")
		return ErrStrategyExited
	}

	chain, err := e.broker.GetOptionChain(e.cfg.Strategy.Underlying, e.cfg.Strategy.Expiry)
	if err != nil {
		return fmt.Errorf("fetch option chain: %w", err)
	}
	if len(chain) == 0 {
		return fmt.Errorf("option chain for %s %s is empty", e.cfg.Strategy.Underlying, e.cfg.Strategy.Expiry)
	}

	pair, err := e.ensurePair(chain)
	if err != nil {
		return fmt.Errorf("ensure pair: %w", err)
	}

	if err := e.refreshHedgeOptions(chain, pair); err != nil {
		e.logger.WithError(err).Warn("Hedge option refresh failed")
	}

	e.refreshVWAP(pair)
	e.refreshLivePrices(pair)
	if err := e.store.SetPair(pair); err != nil {
		return fmt.Errorf("persist pair: %w", err)
	}

	status := ComputeStatus(pair, StatusParams{
		ThresholdPct:  e.cfg.Strategy.ThresholdPct,
		AddFactor:     e.cfg.Strategy.AddFactor,
		ExitLossCap:   e.cfg.Strategy.ExitLossCap,
		LotMultiplier: e.cfg.Strategy.LotMultiplier,
	}, e.now())
	status.Phase = machine.Current()

	if status.ExitStrategy {
		if err := machine.Transition(models.PhaseExited, "loss_cap_reached"); err != nil {
			return fmt.Errorf("exit transition: %w", err)
		}
		status.Phase = machine.Current()
		e.logger.WithFields(logrus.Fields{
			"total_strategy_loss": status.TotalStrategyLoss,
			"exit_loss_cap":       e.cfg.Strategy.ExitLossCap,
		}).Warn("Loss cap reached, exiting strategy")
		if err := e.store.SetPhase(machine.Current()); err != nil {
			return fmt.Errorf("persist phase: %w", err)
		}
		return e.store.SetStrategyStatus(&status)
	}

	if status.HedgeNeeded && e.vwapBelowBias(pair) && machine.CanHedge() {
		if err := e.recordHedge(machine, &status); err != nil {
			e.logger.WithError(err).Error("Hedge recording failed")
		}
	}

	if err := e.store.SetPhase(machine.Current()); err != nil {
		return fmt.Errorf("persist phase: %w", err)
	}
	status.Phase = machine.Current()
	return e.store.SetStrategyStatus(&status)
}

// ensurePair returns the persisted pair, selecting and recording a new one
// from the chain when none exists yet. Sold prices are captured once at
// selection time and never overwritten.
func (e *Engine) ensurePair(chain []broker.ChainOption) (*models.Pair, error) {
	if pair := e.store.GetPair(); pair != nil {
		if err := pair.Validate(); err != nil {
			return nil, fmt.Errorf("persisted pair is invalid: %w", err)
		}
		return pair, nil
	}

	pair, err := e.deltaSel.SelectPair(chain, e.cfg.Strategy.Expiry)
	if err != nil {
		return nil, err
	}

	now := e.now()
	for _, leg := range []*models.Instrument{&pair.Call, &pair.Put} {
		leg.SoldPrice = leg.LTP
		leg.SoldAt = now
		e.resolveLegToken(leg)
	}

	spot, atm := marketContext(chain)
	if err := e.store.SetMarket(spot, atm, e.cfg.Strategy.TargetDelta); err != nil {
		return nil, fmt.Errorf("persist market context: %w", err)
	}
	if err := e.store.SetPair(pair); err != nil {
		return nil, fmt.Errorf("persist pair: %w", err)
	}
	e.logger.WithFields(logrus.Fields{
		"call_strike": pair.Call.Strike,
		"put_strike":  pair.Put.Strike,
		"spot":        spot,
		"atm":         atm,
	}).Info("New strangle pair recorded")
	return pair, nil
}

// resolveLegToken fills a leg's token through the resolver ladder. A failed
// resolution leaves the token empty and tags the leg so the VWAP stage can
// report the right failure.
func (e *Engine) resolveLegToken(leg *models.Instrument) {
	if leg.Token != "" {
		return
	}
	if err := leg.Validate(); err != nil {
		leg.VWAPStatus = models.VWAPUnknown
		leg.VWAPFailureReason = vwap.ReasonNoInstrument
		e.logger.WithError(err).Warn("Leg failed validation, token resolution skipped")
		return
	}
	res, err := e.resolver.Resolve(resolver.Request{
		Name:   leg.Name,
		Expiry: leg.Expiry,
		Strike: leg.Strike,
		Kind:   leg.Kind,
	})
	if err != nil {
		leg.VWAPStatus = models.VWAPUnknown
		leg.VWAPFailureReason = vwap.ReasonTokenNotFound
		e.logger.WithFields(logrus.Fields{
			"strike": leg.Strike,
			"kind":   leg.Kind,
		}).WithError(err).Warn("Token resolution failed")
		return
	}
	leg.Token = res.Token
	leg.TokenSource = res.Source
	if leg.TradingSymbol == "" {
		leg.TradingSymbol = res.TradingSymbol
	}
}

// refreshHedgeOptions reselects hedge candidates from the chain, resolves
// their tokens and refreshes their prices, then persists the set.
func (e *Engine) refreshHedgeOptions(chain []broker.ChainOption, pair *models.Pair) error {
	set := e.hedgeSel.Select(chain, pair)
	for _, side := range [][]models.HedgeLeg{set.Call, set.Put} {
		for i := range side {
			e.refreshHedgeLeg(&side[i], pair.Call.Name, pair.Call.Expiry)
		}
	}
	set.Cost = util.RoundTo(set.TotalCost(), 2)
	return e.store.SetHedgeOptions(set)
}

func (e *Engine) refreshHedgeLeg(leg *models.HedgeLeg, name, expiry string) {
	if leg.Token == "" {
		res, err := e.resolver.Resolve(resolver.Request{
			Name:   name,
			Expiry: expiry,
			Strike: leg.Strike,
			Kind:   leg.Kind,
		})
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"strike": leg.Strike,
				"kind":   leg.Kind,
			}).Debug("Hedge leg token unresolved, keeping chain price")
			return
		}
		leg.Token = res.Token
		if leg.TradingSymbol == "" {
			leg.TradingSymbol = res.TradingSymbol
		}
	}
	if ltp, err := e.broker.GetLTP(exchangeNFO, leg.TradingSymbol, leg.Token); err == nil && ltp > 0 {
		leg.LTP = ltp
	}
}

// refreshVWAP recomputes each leg's VWAP classification and persists the
// summary. Legs without a token keep the failure reason set at resolution.
func (e *Engine) refreshVWAP(pair *models.Pair) {
	summary := &models.VWAPSummary{ComputedAt: e.now()}
	for _, l := range []struct {
		leg *models.Instrument
		out *models.VWAPLegSummary
	}{
		{&pair.Call, &summary.Call},
		{&pair.Put, &summary.Put},
	} {
		e.resolveLegToken(l.leg)
		if l.leg.Token == "" {
			if l.leg.VWAPFailureReason == "" {
				l.leg.VWAPFailureReason = vwap.ReasonTokenNotFound
			}
			l.leg.VWAPStatus = models.VWAPUnknown
			l.leg.VWAP = nil
			*l.out = models.VWAPLegSummary{Status: models.VWAPUnknown}
			continue
		}
		res := e.vwap.Compute(l.leg.Token)
		l.leg.VWAP = res.VWAP
		l.leg.VWAPStatus = res.Status
		l.leg.VWAPFailureReason = res.FailureReason
		*l.out = vwap.Summarize(res)
	}
	if err := e.store.SetVWAPSummary(summary); err != nil {
		e.logger.WithError(err).Warn("Failed to persist VWAP summary")
	}
}

// refreshLivePrices fetches a fresh quote for each leg. A failed quote is
// logged and leaves the previous price in place rather than zeroing it.
func (e *Engine) refreshLivePrices(pair *models.Pair) {
	for _, leg := range []*models.Instrument{&pair.Call, &pair.Put} {
		ltp, err := e.broker.GetLTP(exchangeNFO, leg.TradingSymbol, leg.Token)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"strike": leg.Strike,
				"kind":   leg.Kind,
			}).WithError(err).Warn("Live quote failed, keeping last price")
			continue
		}
		leg.LTP = ltp
	}
}

// vwapBelowBias reports whether either leg trades above its VWAP baseline
// in the losing direction: a Below status means the VWAP sits under the
// last price, so the leg has run up against the short position.
func (e *Engine) vwapBelowBias(pair *models.Pair) bool {
	return pair.Call.VWAPStatus == models.VWAPBelow || pair.Put.VWAPStatus == models.VWAPBelow
}

// recordHedge appends a hedge entry built from the first candidate on each
// side of the persisted hedge set, priced at the set's aggregate cost, and
// moves the phase to hedged.
func (e *Engine) recordHedge(machine *models.PhaseMachine, status *models.StrategyStatus) error {
	set := e.store.Snapshot().HedgeOptions
	if set == nil || (len(set.Call) == 0 && len(set.Put) == 0) {
		return fmt.Errorf("no hedge candidates available")
	}
	rec := models.HedgeRecord{
		ID:        uuid.NewString(),
		Timestamp: e.now(),
		Reason:    hedgeReasonVWAPBelow,
	}
	if len(set.Call) > 0 {
		rec.Call = set.Call[0]
	}
	if len(set.Put) > 0 {
		rec.Put = set.Put[0]
	}
	// The entry carries the aggregate cost of the whole candidate set, not
	// just the two recorded legs.
	rec.TotalCost = util.RoundTo(set.Cost, 2)

	if err := machine.Transition(models.PhaseHedged, "hedge_triggered"); err != nil {
		return err
	}
	if err := e.store.AppendHedge(rec); err != nil {
		return fmt.Errorf("append hedge: %w", err)
	}
	status.HedgeActive = true
	status.HedgeCost = rec.TotalCost
	e.logger.WithFields(logrus.Fields{
		"hedge_id":   rec.ID,
		"call":       rec.Call.Strike,
		"put":        rec.Put.Strike,
		"total_cost": rec.TotalCost,
	}).Info("Hedge recorded")
	return nil
}

// marketContext derives spot and the at-the-money strike from the chain.
func marketContext(chain []broker.ChainOption) (spot, atm float64) {
	var strikeSum float64
	for _, o := range chain {
		if spot == 0 && float64(o.UnderlyingValue) > 0 {
			spot = float64(o.UnderlyingValue)
		}
		strikeSum += float64(o.StrikePrice)
	}
	if spot == 0 && len(chain) > 0 {
		spot = strikeSum / float64(len(chain))
	}
	best := math.MaxFloat64
	for _, o := range chain {
		strike := float64(o.StrikePrice)
		if d := math.Abs(strike - spot); d < best {
			best, atm = d, strike
		}
	}
	return spot, atm
}
