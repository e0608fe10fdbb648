// Package resolver maps an option contract (underlying, expiry, strike,
// kind) onto a broker symbol token. Catalog sources vary wildly in shape
// and naming, so resolution walks an ordered ladder of sources and matches
// entries by trading-symbol variants with a strike-equality fallback.
package resolver

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

// ErrNotFound is returned when no source could resolve a token.
var ErrNotFound = errors.New("resolver: token not found")

// Policy controls how strict entry matching is.
type Policy struct {
	// AllowKindMismatch keeps a strike-equality fallback match even when the
	// entry's option type disagrees with the requested kind. Catalog dumps
	// frequently mislabel the type, so this defaults to true upstream.
	AllowKindMismatch bool
}

// Request identifies the contract to resolve.
type Request struct {
	Name   string
	Expiry string
	Strike float64
	Kind   models.OptionKind
}

// Result is a resolved token plus where it came from.
type Result struct {
	Token         string
	TradingSymbol string
	Source        string
}

// Source is one rung of the resolution ladder.
type Source interface {
	Name() string
	Lookup(req Request, variants []string, policy Policy) (Result, bool, error)
}

// Resolver tries each source in order and returns the first hit.
type Resolver struct {
	sources []Source
	policy  Policy
	logger  *logrus.Logger
}

// New builds a resolver over the given sources, tried in order.
func New(policy Policy, logger *logrus.Logger, sources ...Source) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{sources: sources, policy: policy, logger: logger}
}

// Resolve walks the source ladder. Source errors are logged and treated as
// misses so a broken tier never blocks a later one; ErrNotFound comes back
// only after every source has been tried.
func (r *Resolver) Resolve(req Request) (Result, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Result{}, fmt.Errorf("resolver: empty underlying name")
	}
	variants := BuildSymbolVariants(req)
	for _, src := range r.sources {
		res, ok, err := src.Lookup(req, variants, r.policy)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"source": src.Name(),
				"name":   req.Name,
				"strike": req.Strike,
				"kind":   req.Kind,
			}).WithError(err).Warn("Symbol source failed, trying next")
			continue
		}
		if ok {
			res.Source = src.Name()
			r.logger.WithFields(logrus.Fields{
				"source": res.Source,
				"token":  res.Token,
				"symbol": res.TradingSymbol,
			}).Debug("Resolved symbol token")
			return res, nil
		}
	}
	return Result{}, fmt.Errorf("%w: %s %s %s %s", ErrNotFound,
		req.Name, req.Expiry, formatStrike(req.Strike), req.Kind)
}

// BuildSymbolVariants produces the candidate trading-symbol spellings for a
// contract, most specific first, with lowercase duplicates appended and the
// whole list deduplicated preserving first occurrence.
func BuildSymbolVariants(req Request) []string {
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	expiry := symbolExpiry(req.Expiry)
	strike := formatStrike(req.Strike)
	kind := string(req.Kind)

	raw := []string{
		name + expiry + strike + kind,
		name + strike + kind,
		name + kind + strike,
		name + expiry + strike,
		name + strike,
		strike + kind,
	}
	variants := make([]string, 0, len(raw)*2)
	variants = append(variants, raw...)
	for _, v := range raw {
		variants = append(variants, strings.ToLower(v))
	}

	seen := make(map[string]struct{}, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MatchEntries finds the catalog entry for a request. It first takes the
// first entry whose trading symbol contains any variant (case-insensitive,
// variant order wins), then falls back to strike equality at two decimals.
// Under the fallback, a kind mismatch only disqualifies an entry when the
// policy forbids it.
func MatchEntries(entries []broker.CatalogEntry, req Request, variants []string, policy Policy) (broker.CatalogEntry, bool) {
	for _, v := range variants {
		lv := strings.ToLower(v)
		for _, e := range entries {
			if e.Token == "" {
				continue
			}
			if strings.Contains(strings.ToLower(e.TradingSymbol), lv) {
				return e, true
			}
		}
	}

	want := roundTo2(req.Strike)
	for _, e := range entries {
		if e.Token == "" {
			continue
		}
		if roundTo2(e.Strike) != want {
			continue
		}
		if !policy.AllowKindMismatch && !kindMatches(e.OptionType, req.Kind) {
			continue
		}
		return e, true
	}
	return broker.CatalogEntry{}, false
}

func kindMatches(entryType string, kind models.OptionKind) bool {
	t := strings.ToUpper(strings.TrimSpace(entryType))
	if t == "" {
		return true
	}
	return strings.Contains(t, string(kind))
}

// symbolExpiry renders an expiry the way NFO trading symbols embed it,
// e.g. "30DEC25". Unparsable input yields an empty form, so the
// expiry-bearing variants collapse into their expiry-free spellings
// instead of carrying garbage text into lookups.
func symbolExpiry(expiry string) string {
	t, err := models.ParseExpiry(expiry)
	if err != nil {
		return ""
	}
	return strings.ToUpper(t.Format("02Jan06"))
}

func formatStrike(strike float64) string {
	return fmt.Sprintf("%d", int64(strike))
}

func roundTo2(x float64) float64 {
	return math.Round(x*100) / 100
}
