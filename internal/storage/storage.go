package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// TradeState is the flat keyed document persisted between cycles. Key paths
// (finalPair.call.*, hedgeOptions.call_5rs, strategyStatus.*) are read by
// downstream dashboards and must stay stable.
type TradeState struct {
	TargetDelta    float64                `json:"targetDelta"`
	Spot           float64                `json:"spot"`
	ATM            float64                `json:"atm"`
	FinalPair      *models.Pair           `json:"finalPair"`
	VWAPSummary    *models.VWAPSummary    `json:"vwapSummary,omitempty"`
	HedgeOptions   *models.HedgeSet       `json:"hedgeOptions,omitempty"`
	StrategyStatus *models.StrategyStatus `json:"strategyStatus,omitempty"`
	Hedges         []models.HedgeRecord   `json:"hedges"`
	Phase          models.StrategyPhase   `json:"phase"`
	LastUpdated    time.Time              `json:"last_updated"`
}

// JSONStorage persists the trade state as a single JSON file, plus one
// candle-cache file per token under candleDir.
type JSONStorage struct {
	mu        sync.RWMutex
	filepath  string
	candleDir string
	data      *TradeState
}

// NewJSONStorage creates storage rooted at filepath, loading existing state
// if the file is present.
func NewJSONStorage(path, candleDir string) (*JSONStorage, error) {
	if candleDir == "" {
		candleDir = filepath.Join(filepath.Dir(path), "candles")
	}
	s := &JSONStorage{
		filepath:  path,
		candleDir: candleDir,
		data: &TradeState{
			Hedges: make([]models.HedgeRecord, 0),
			Phase:  models.PhaseActive,
		},
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the trade state from disk.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return err
	}
	if s.data.Hedges == nil {
		s.data.Hedges = make([]models.HedgeRecord, 0)
	}
	if s.data.Phase == "" {
		s.data.Phase = models.PhaseActive
	}

	return nil
}

// Save writes the trade state to disk atomically.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

// Snapshot returns a deep copy of the current trade state.
func (s *JSONStorage) Snapshot() TradeState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := *s.data
	if s.data.FinalPair != nil {
		p := *s.data.FinalPair
		out.FinalPair = &p
	}
	if s.data.VWAPSummary != nil {
		v := *s.data.VWAPSummary
		out.VWAPSummary = &v
	}
	if s.data.HedgeOptions != nil {
		h := *s.data.HedgeOptions
		h.Call = append([]models.HedgeLeg(nil), s.data.HedgeOptions.Call...)
		h.Put = append([]models.HedgeLeg(nil), s.data.HedgeOptions.Put...)
		out.HedgeOptions = &h
	}
	if s.data.StrategyStatus != nil {
		st := *s.data.StrategyStatus
		out.StrategyStatus = &st
	}
	out.Hedges = append([]models.HedgeRecord(nil), s.data.Hedges...)
	return out
}

// GetPair returns a copy of the selected pair, or nil if none is recorded.
func (s *JSONStorage) GetPair() *models.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.FinalPair == nil {
		return nil
	}
	p := *s.data.FinalPair
	return &p
}

// SetPair records the selected pair and persists.
func (s *JSONStorage) SetPair(p *models.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.FinalPair = p
	return s.saveLocked()
}

// SetMarket records the market context captured at selection time.
func (s *JSONStorage) SetMarket(spot, atm, targetDelta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Spot = spot
	s.data.ATM = atm
	s.data.TargetDelta = targetDelta
	return s.saveLocked()
}

// SetVWAPSummary records the per-leg VWAP summary and persists.
func (s *JSONStorage) SetVWAPSummary(v *models.VWAPSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.VWAPSummary = v
	return s.saveLocked()
}

// SetHedgeOptions records the current hedge candidates and persists.
func (s *JSONStorage) SetHedgeOptions(h *models.HedgeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.HedgeOptions = h
	return s.saveLocked()
}

// SetStrategyStatus records the per-cycle snapshot and persists.
func (s *JSONStorage) SetStrategyStatus(st *models.StrategyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.StrategyStatus = st
	return s.saveLocked()
}

// AppendHedge appends one entry to the hedge history and persists.
// History entries are never deleted.
func (s *JSONStorage) AppendHedge(rec models.HedgeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Hedges = append(s.data.Hedges, rec)
	return s.saveLocked()
}

// GetHedges returns a copy of the hedge history.
func (s *JSONStorage) GetHedges() []models.HedgeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.HedgeRecord(nil), s.data.Hedges...)
}

// GetPhase returns the persisted strategy phase.
func (s *JSONStorage) GetPhase() models.StrategyPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Phase
}

// SetPhase records the strategy phase and persists.
func (s *JSONStorage) SetPhase(p models.StrategyPhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Phase = p
	return s.saveLocked()
}

// candleFile is the on-disk shape of one cached candle series.
type candleFile struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Candles   []models.Candle `json:"candles"`
}

// LoadCandles reads the cached series for a token. Missing or unreadable
// cache files yield an empty series, not an error: the cache is tier one of
// a fallback ladder, never a hard dependency.
func (s *JSONStorage) LoadCandles(token string) ([]models.Candle, error) {
	if token == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(s.candleDir, token+".json")) // #nosec G304 -- path derived from a resolved token
	if err != nil {
		return nil, nil
	}
	var f candleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil
	}
	return f.Candles, nil
}

// SaveCandles writes the series for a token into the cache directory.
func (s *JSONStorage) SaveCandles(token string, candles []models.Candle) error {
	if token == "" {
		return fmt.Errorf("cannot cache candles without a token")
	}
	if err := os.MkdirAll(s.candleDir, 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(candleFile{
		FetchedAt: time.Now(),
		Candles:   candles,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.candleDir, token+".json"), data, 0o644)
}
