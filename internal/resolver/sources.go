package resolver

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/storage"
)

// StorageSource answers from the persisted pair: if the stored leg for this
// strike and kind already carries a token, reuse it without touching any
// catalog.
type StorageSource struct {
	Store storage.Interface
}

// Name identifies the source in logs and results.
func (s StorageSource) Name() string { return "instrument-record" }

// Lookup checks the persisted pair legs for an already-resolved token.
func (s StorageSource) Lookup(req Request, _ []string, _ Policy) (Result, bool, error) {
	pair := s.Store.GetPair()
	if pair == nil {
		return Result{}, false, nil
	}
	for _, leg := range []*struct {
		strike float64
		kind   string
		token  string
		symbol string
	}{
		{pair.Call.Strike, string(pair.Call.Kind), pair.Call.Token, pair.Call.TradingSymbol},
		{pair.Put.Strike, string(pair.Put.Kind), pair.Put.Token, pair.Put.TradingSymbol},
	} {
		if leg.token == "" {
			continue
		}
		if roundTo2(leg.strike) == roundTo2(req.Strike) && leg.kind == string(req.Kind) {
			return Result{Token: leg.token, TradingSymbol: leg.symbol}, true, nil
		}
	}
	return Result{}, false, nil
}

// FileSource matches against a catalog dump on disk. A missing file is a
// miss, not an error; a present but undecodable file is an error so the
// operator hears about a corrupt dump.
type FileSource struct {
	SourceName string
	Path       string
}

// Name identifies the source in logs and results.
func (f FileSource) Name() string { return f.SourceName }

// Lookup loads the dump and matches entries against the request.
func (f FileSource) Lookup(req Request, variants []string, policy Policy) (Result, bool, error) {
	if f.Path == "" {
		return Result{}, false, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, false, nil
		}
		return Result{}, false, fmt.Errorf("read catalog %s: %w", f.Path, err)
	}
	entries, err := DecodeCatalog(data)
	if err != nil {
		return Result{}, false, fmt.Errorf("decode catalog %s: %w", f.Path, err)
	}
	entry, ok := MatchEntries(entries, req, variants, policy)
	if !ok {
		return Result{}, false, nil
	}
	return Result{Token: entry.Token, TradingSymbol: entry.TradingSymbol}, true, nil
}

// SearchSource queries the broker's scrip search, one variant at a time,
// until a query returns entries that match.
type SearchSource struct {
	Broker broker.Broker
}

// Name identifies the source in logs and results.
func (s SearchSource) Name() string { return "remote-search" }

// Lookup runs per-variant search queries against the broker.
func (s SearchSource) Lookup(req Request, variants []string, policy Policy) (Result, bool, error) {
	var lastErr error
	for _, v := range variants {
		entries, err := s.Broker.SearchScrip(v)
		if err != nil {
			lastErr = err
			continue
		}
		if len(entries) == 0 {
			continue
		}
		if entry, ok := MatchEntries(entries, req, variants, policy); ok {
			return Result{Token: entry.Token, TradingSymbol: entry.TradingSymbol}, true, nil
		}
	}
	if lastErr != nil {
		return Result{}, false, fmt.Errorf("search scrip: %w", lastErr)
	}
	return Result{}, false, nil
}

// DecodeCatalog accepts the catalog shapes seen in the wild: a bare entry
// list, an envelope object keyed by data/result/scrips/list, an object whose
// values are the entries, or the per-side search dump
// {side: {searches: [{result: {data: [...]}}]}}.
func DecodeCatalog(data []byte) ([]broker.CatalogEntry, error) {
	var list []broker.CatalogEntry
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("catalog is neither a list nor an object")
	}

	for _, key := range []string{"data", "result", "scrips", "list"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
	}

	// Per-side search dump: every value may hold searches[].result.data[].
	var fromSearches []broker.CatalogEntry
	for _, raw := range envelope {
		var side struct {
			Searches []struct {
				Result struct {
					Data []broker.CatalogEntry `json:"data"`
				} `json:"result"`
			} `json:"searches"`
		}
		if err := json.Unmarshal(raw, &side); err == nil && len(side.Searches) > 0 {
			for _, s := range side.Searches {
				fromSearches = append(fromSearches, s.Result.Data...)
			}
		}
	}
	if len(fromSearches) > 0 {
		return fromSearches, nil
	}

	// Object whose values are themselves entries.
	var fromValues []broker.CatalogEntry
	for _, raw := range envelope {
		var e broker.CatalogEntry
		if err := json.Unmarshal(raw, &e); err == nil && e.Token != "" {
			fromValues = append(fromValues, e)
		}
	}
	if len(fromValues) > 0 {
		return fromValues, nil
	}
	return nil, fmt.Errorf("no recognizable catalog entries")
}
