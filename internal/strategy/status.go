package strategy

import (
	"time"

	"github.com/rsharma-dev/nifty-strangler/internal/models"
	"github.com/rsharma-dev/nifty-strangler/internal/util"
)

// StatusParams are the risk knobs the snapshot is computed against.
type StatusParams struct {
	ThresholdPct  float64
	AddFactor     float64
	ExitLossCap   float64
	LotMultiplier float64
}

// ComputeStatus derives the per-cycle risk snapshot from the pair's sold and
// live premiums. A leg with no recorded sold price falls back to its live
// price, so a freshly selected pair starts from a zero loss baseline.
// Monetary fields are rounded to two decimal places.
func ComputeStatus(pair *models.Pair, p StatusParams, now time.Time) models.StrategyStatus {
	soldCall := pair.Call.SoldPrice
	if soldCall == 0 {
		soldCall = pair.Call.LTP
	}
	soldPut := pair.Put.SoldPrice
	if soldPut == 0 {
		soldPut = pair.Put.LTP
	}

	liveCall := pair.Call.LTP
	livePut := pair.Put.LTP
	liveTotal := liveCall + livePut
	soldTotal := soldCall + soldPut

	threshold40 := p.ThresholdPct * soldTotal
	liveLoss := threshold40 - liveTotal
	hedgeNeeded := liveLoss > 0
	addNewOption := liveLoss > p.AddFactor*threshold40
	totalLoss := abs(liveLoss) * p.LotMultiplier

	return models.StrategyStatus{
		Timestamp:         now,
		SoldCall:          util.RoundTo(soldCall, 2),
		SoldPut:           util.RoundTo(soldPut, 2),
		LiveCall:          util.RoundTo(liveCall, 2),
		LivePut:           util.RoundTo(livePut, 2),
		TotalSold:         util.RoundTo(soldTotal, 2),
		Threshold40:       util.RoundTo(threshold40, 2),
		LiveTotal:         util.RoundTo(liveTotal, 2),
		LiveLoss:          util.RoundTo(liveLoss, 2),
		HedgeNeeded:       hedgeNeeded,
		AddNewOption:      addNewOption,
		TotalStrategyLoss: util.RoundTo(totalLoss, 2),
		ExitStrategy:      totalLoss >= p.ExitLossCap,
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
