// Package storage persists the trade document the whole engine reads and
// writes: the selected pair, VWAP summaries, hedge options, the per-cycle
// strategy status, and the append-only hedge history.
package storage

import (
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// Interface defines the contract for trade-state persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe. The provided JSONStorage implementation uses
// sync.RWMutex to serialize access, which also gives each evaluation cycle
// the atomic read-modify-write the engine contract requires.
type Interface interface {
	// Trade document
	Snapshot() TradeState
	GetPair() *models.Pair
	SetPair(p *models.Pair) error
	SetMarket(spot, atm, targetDelta float64) error
	SetVWAPSummary(v *models.VWAPSummary) error
	SetHedgeOptions(h *models.HedgeSet) error
	SetStrategyStatus(s *models.StrategyStatus) error

	// Hedge history is append-only; entries are never deleted by the engine.
	AppendHedge(rec models.HedgeRecord) error
	GetHedges() []models.HedgeRecord

	// Phase
	GetPhase() models.StrategyPhase
	SetPhase(p models.StrategyPhase) error

	// Data persistence
	Save() error
	Load() error

	// Candle cache, one file per token. A cache miss returns an empty
	// series and no error.
	LoadCandles(token string) ([]models.Candle, error)
	SaveCandles(token string, candles []models.Candle) error
}

// NewStorage creates a new storage implementation (currently JSON-based).
func NewStorage(filepath, candleDir string) (Interface, error) {
	return NewJSONStorage(filepath, candleDir)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
