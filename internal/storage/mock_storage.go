package storage

import (
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// MockStorage implements Interface for testing. It keeps everything in
// memory and counts Save calls.
type MockStorage struct {
	state         TradeState
	candles       map[string][]models.Candle
	saveError     error
	saveCallCount int
}

// NewMockStorage creates a new mock storage for testing.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		state: TradeState{
			Hedges: make([]models.HedgeRecord, 0),
			Phase:  models.PhaseActive,
		},
		candles: make(map[string][]models.Candle),
	}
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)

// SetSaveError makes subsequent mutators fail with the given error.
func (m *MockStorage) SetSaveError(err error) { m.saveError = err }

// SaveCallCount returns how many times state was persisted.
func (m *MockStorage) SaveCallCount() int { return m.saveCallCount }

// SeedCandles primes the candle cache for a token.
func (m *MockStorage) SeedCandles(token string, c []models.Candle) { m.candles[token] = c }

func (m *MockStorage) save() error {
	m.saveCallCount++
	return m.saveError
}

// Snapshot returns the in-memory state.
func (m *MockStorage) Snapshot() TradeState { return m.state }

// GetPair returns the recorded pair.
func (m *MockStorage) GetPair() *models.Pair {
	if m.state.FinalPair == nil {
		return nil
	}
	p := *m.state.FinalPair
	return &p
}

// SetPair records the pair.
func (m *MockStorage) SetPair(p *models.Pair) error {
	m.state.FinalPair = p
	return m.save()
}

// SetMarket records the market context.
func (m *MockStorage) SetMarket(spot, atm, targetDelta float64) error {
	m.state.Spot = spot
	m.state.ATM = atm
	m.state.TargetDelta = targetDelta
	return m.save()
}

// SetVWAPSummary records the VWAP summary.
func (m *MockStorage) SetVWAPSummary(v *models.VWAPSummary) error {
	m.state.VWAPSummary = v
	return m.save()
}

// SetHedgeOptions records the hedge candidates.
func (m *MockStorage) SetHedgeOptions(h *models.HedgeSet) error {
	m.state.HedgeOptions = h
	return m.save()
}

// SetStrategyStatus records the cycle snapshot.
func (m *MockStorage) SetStrategyStatus(st *models.StrategyStatus) error {
	m.state.StrategyStatus = st
	return m.save()
}

// AppendHedge appends to the hedge history.
func (m *MockStorage) AppendHedge(rec models.HedgeRecord) error {
	m.state.Hedges = append(m.state.Hedges, rec)
	return m.save()
}

// GetHedges returns the hedge history.
func (m *MockStorage) GetHedges() []models.HedgeRecord {
	return append([]models.HedgeRecord(nil), m.state.Hedges...)
}

// GetPhase returns the phase.
func (m *MockStorage) GetPhase() models.StrategyPhase { return m.state.Phase }

// SetPhase records the phase.
func (m *MockStorage) SetPhase(p models.StrategyPhase) error {
	m.state.Phase = p
	return m.save()
}

// Save records a persistence call.
func (m *MockStorage) Save() error { return m.save() }

// Load is a no-op for the mock.
func (m *MockStorage) Load() error { return nil }

// LoadCandles returns seeded candles for a token.
func (m *MockStorage) LoadCandles(token string) ([]models.Candle, error) {
	return m.candles[token], nil
}

// SaveCandles stores candles for a token.
func (m *MockStorage) SaveCandles(token string, candles []models.Candle) error {
	m.candles[token] = candles
	return nil
}
