package strategy

import (
	"testing"
	"time"

	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

var defaultParams = StatusParams{
	ThresholdPct:  0.40,
	AddFactor:     0.5,
	ExitLossCap:   1500,
	LotMultiplier: 2,
}

func statusPair(soldCall, soldPut, liveCall, livePut float64) *models.Pair {
	return &models.Pair{
		Call: models.Instrument{
			Name: "NIFTY", Expiry: "2026-09-29", Strike: 25500, Kind: models.Call,
			SoldPrice: soldCall, LTP: liveCall,
		},
		Put: models.Instrument{
			Name: "NIFTY", Expiry: "2026-09-29", Strike: 24500, Kind: models.Put,
			SoldPrice: soldPut, LTP: livePut,
		},
	}
}

func TestComputeStatusNoHedgeNeeded(t *testing.T) {
	// soldTotal=100, threshold=40, liveTotal=50 -> liveLoss=-10.
	st := ComputeStatus(statusPair(60, 40, 30, 20), defaultParams, time.Now())

	if st.TotalSold != 100 {
		t.Errorf("TotalSold = %v, want 100", st.TotalSold)
	}
	if st.Threshold40 != 40 {
		t.Errorf("Threshold40 = %v, want 40", st.Threshold40)
	}
	if st.LiveTotal != 50 {
		t.Errorf("LiveTotal = %v, want 50", st.LiveTotal)
	}
	if st.LiveLoss != -10 {
		t.Errorf("LiveLoss = %v, want -10", st.LiveLoss)
	}
	if st.HedgeNeeded {
		t.Error("HedgeNeeded should be false when live total exceeds the threshold")
	}
	if st.AddNewOption {
		t.Error("AddNewOption should be false")
	}
	if st.TotalStrategyLoss != 20 {
		t.Errorf("TotalStrategyLoss = %v, want 20 (|liveLoss|*2)", st.TotalStrategyLoss)
	}
	if st.ExitStrategy {
		t.Error("ExitStrategy should be false")
	}
}

func TestComputeStatusHedgeNeeded(t *testing.T) {
	// soldTotal=100, threshold=40, liveTotal=30 -> liveLoss=10.
	st := ComputeStatus(statusPair(60, 40, 18, 12), defaultParams, time.Now())

	if st.LiveLoss != 10 {
		t.Errorf("LiveLoss = %v, want 10", st.LiveLoss)
	}
	if !st.HedgeNeeded {
		t.Error("HedgeNeeded should be true for a positive live loss")
	}
	// addNewOption requires liveLoss > 0.5*threshold = 20.
	if st.AddNewOption {
		t.Error("AddNewOption should stay false at liveLoss=10")
	}
	if st.TotalStrategyLoss != 20 {
		t.Errorf("TotalStrategyLoss = %v, want 20", st.TotalStrategyLoss)
	}
}

func TestComputeStatusAddNewOption(t *testing.T) {
	// soldTotal=100, threshold=40, liveTotal=15 -> liveLoss=25 > 20.
	st := ComputeStatus(statusPair(60, 40, 10, 5), defaultParams, time.Now())
	if !st.AddNewOption {
		t.Error("AddNewOption should fire when liveLoss exceeds half the threshold")
	}
}

func TestComputeStatusExitAtLossCap(t *testing.T) {
	// soldTotal=2000, threshold=800, liveTotal=50 -> liveLoss=750,
	// total loss = 1500 which meets the cap exactly.
	st := ComputeStatus(statusPair(1200, 800, 30, 20), defaultParams, time.Now())
	if st.TotalStrategyLoss != 1500 {
		t.Fatalf("TotalStrategyLoss = %v, want 1500", st.TotalStrategyLoss)
	}
	if !st.ExitStrategy {
		t.Error("ExitStrategy should fire when total loss meets the cap")
	}
}

func TestComputeStatusSoldFallsBackToLive(t *testing.T) {
	// Fresh pair with no captured sold prices: sold mirrors live, so the
	// baseline loss is driven purely by the threshold fraction.
	st := ComputeStatus(statusPair(0, 0, 30, 20), defaultParams, time.Now())
	if st.SoldCall != 30 || st.SoldPut != 20 {
		t.Errorf("sold = %v/%v, want live fallback 30/20", st.SoldCall, st.SoldPut)
	}
	if st.TotalSold != 50 {
		t.Errorf("TotalSold = %v, want 50", st.TotalSold)
	}
	if st.HedgeNeeded {
		t.Error("a fresh pair cannot need a hedge on its first cycle")
	}
}

func TestComputeStatusRoundsMoney(t *testing.T) {
	st := ComputeStatus(statusPair(33.333, 33.333, 10.111, 10.111), defaultParams, time.Now())
	if st.TotalSold != 66.67 {
		t.Errorf("TotalSold = %v, want 66.67", st.TotalSold)
	}
	if st.LiveTotal != 20.22 {
		t.Errorf("LiveTotal = %v, want 20.22", st.LiveTotal)
	}
}
