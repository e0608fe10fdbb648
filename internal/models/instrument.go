// Package models provides the data structures shared by the strangle engine:
// instruments, pairs, hedge legs, candles, and the per-cycle strategy snapshot.
package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// OptionKind identifies the option side using exchange notation.
type OptionKind string

const (
	// Call is a call option (CE in NFO tradingsymbols).
	Call OptionKind = "CE"
	// Put is a put option (PE in NFO tradingsymbols).
	Put OptionKind = "PE"
)

// Valid returns true if the kind is one of the defined constants.
func (k OptionKind) Valid() bool {
	switch k {
	case Call, Put:
		return true
	default:
		return false
	}
}

// DeltaSign returns the market-convention sign of delta for this kind:
// +1 for calls, -1 for puts.
func (k OptionKind) DeltaSign() float64 {
	if k == Put {
		return -1
	}
	return 1
}

// VWAPStatus tags where the VWAP sits relative to the last close.
type VWAPStatus string

const (
	// VWAPAbove means VWAP is strictly greater than the last close.
	VWAPAbove VWAPStatus = "Above"
	// VWAPBelow means VWAP is at or below the last close.
	VWAPBelow VWAPStatus = "Below"
	// VWAPUnknown means VWAP could not be computed this cycle.
	VWAPUnknown VWAPStatus = "unknown"
)

// Instrument is one tradable option leg. The token is resolved lazily; all
// numeric fields except SoldPrice are overwritten on every refresh cycle.
type Instrument struct {
	Name              string     `json:"name"`
	Expiry            string     `json:"expiry"`
	Strike            float64    `json:"strikePrice"`
	Kind              OptionKind `json:"optionType"`
	Token             string     `json:"symbolToken,omitempty"`
	TradingSymbol     string     `json:"tradingsymbol,omitempty"`
	TokenSource       string     `json:"tokenSource,omitempty"`
	Delta             float64    `json:"delta"`
	LTP               float64    `json:"ltp"`
	SoldPrice         float64    `json:"soldPrice"`
	SoldAt            time.Time  `json:"soldAt,omitempty"`
	VWAP              *float64   `json:"vwap"`
	VWAPStatus        VWAPStatus `json:"vwapStatus"`
	VWAPFailureReason string     `json:"vwapFailureReason,omitempty"`
}

// Validate checks the fields resolution and selection depend on.
func (i *Instrument) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("instrument missing underlying name")
	}
	if i.Strike <= 0 {
		return fmt.Errorf("instrument %s: strike must be positive (got %.2f)", i.Name, i.Strike)
	}
	if !i.Kind.Valid() {
		return fmt.Errorf("instrument %s: invalid option kind %q", i.Name, i.Kind)
	}
	return nil
}

// Pair is the selected short strangle: one call and one put sold together.
type Pair struct {
	Call        Instrument `json:"call"`
	Put         Instrument `json:"put"`
	CallPremium float64    `json:"callPremium"`
	PutPremium  float64    `json:"putPremium"`
	PremiumDiff float64    `json:"premiumDiff"`
	Distance    float64    `json:"distance"`
}

// Validate enforces the pair invariant: both legs share underlying and expiry.
func (p *Pair) Validate() error {
	if err := p.Call.Validate(); err != nil {
		return fmt.Errorf("call leg: %w", err)
	}
	if err := p.Put.Validate(); err != nil {
		return fmt.Errorf("put leg: %w", err)
	}
	if p.Call.Kind != Call {
		return fmt.Errorf("call leg has kind %s", p.Call.Kind)
	}
	if p.Put.Kind != Put {
		return fmt.Errorf("put leg has kind %s", p.Put.Kind)
	}
	if p.Call.Name != p.Put.Name {
		return fmt.Errorf("pair legs disagree on underlying: %s vs %s", p.Call.Name, p.Put.Name)
	}
	if p.Call.Expiry != p.Put.Expiry {
		return fmt.Errorf("pair legs disagree on expiry: %s vs %s", p.Call.Expiry, p.Put.Expiry)
	}
	return nil
}

// HedgeLeg is a candidate protective buy at a strike adjacent to a sold strike.
type HedgeLeg struct {
	Strike        float64    `json:"strikePrice"`
	LTP           float64    `json:"ltp"`
	Delta         float64    `json:"delta"`
	Kind          OptionKind `json:"optionType"`
	TradingSymbol string     `json:"tradingsymbol"`
	Token         string     `json:"symbolToken,omitempty"`
}

// HedgeSet holds up to two hedge candidates per side plus the aggregate cost.
// The json keys are part of the persisted document contract read by dashboards.
type HedgeSet struct {
	Call []HedgeLeg `json:"call_5rs"`
	Put  []HedgeLeg `json:"put_5rs"`
	Cost float64    `json:"hedgeCost"`
}

// TotalCost sums the live prices of every leg in the set.
func (h *HedgeSet) TotalCost() float64 {
	var sum float64
	for _, l := range h.Call {
		sum += l.LTP
	}
	for _, l := range h.Put {
		sum += l.LTP
	}
	return sum
}

// HedgeRecord is one append-only entry in the hedge history log.
type HedgeRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Call      HedgeLeg  `json:"call"`
	Put       HedgeLeg  `json:"put"`
	Reason    string    `json:"reason"`
	TotalCost float64   `json:"total_cost"`
}

// StrategyStatus is the per-cycle risk snapshot. Recomputed unconditionally
// every evaluation cycle; field names mirror the persisted document.
type StrategyStatus struct {
	Timestamp         time.Time     `json:"timestamp"`
	SoldCall          float64       `json:"sold_call"`
	SoldPut           float64       `json:"sold_put"`
	LiveCall          float64       `json:"live_call"`
	LivePut           float64       `json:"live_put"`
	TotalSold         float64       `json:"total_sold"`
	Threshold40       float64       `json:"threshold_40_sold"`
	LiveTotal         float64       `json:"live_total"`
	LiveLoss          float64       `json:"live_loss"`
	HedgeNeeded       bool          `json:"hedge_needed"`
	AddNewOption      bool          `json:"add_new_option"`
	ExitStrategy      bool          `json:"exit_strategy"`
	TotalStrategyLoss float64       `json:"total_strategy_loss"`
	HedgeActive       bool          `json:"hedge_active,omitempty"`
	HedgeCost         float64       `json:"hedge_cost,omitempty"`
	Phase             StrategyPhase `json:"phase"`
}

// VWAPSummary is the compact per-leg VWAP view persisted alongside the pair.
type VWAPSummary struct {
	Call       VWAPLegSummary `json:"call"`
	Put        VWAPLegSummary `json:"put"`
	ComputedAt time.Time      `json:"computed_at"`
}

// VWAPLegSummary is one leg of the VWAP summary.
type VWAPLegSummary struct {
	VWAP   *float64   `json:"vwap"`
	Status VWAPStatus `json:"status"`
}

// expiryLayouts are the accepted textual expiry forms, tried in order.
var expiryLayouts = []string{"2006-01-02", "02Jan2006", "02-Jan-2006", "02Jan06"}

// ParseExpiry parses an expiry in any of the accepted textual forms
// (ISO YYYY-MM-DD, DDMONYYYY, DD-MON-YYYY, DDMONYY).
func ParseExpiry(expiry string) (time.Time, error) {
	s := titleizeLetters(strings.TrimSpace(expiry))
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable expiry %q", expiry)
}

// NormalizeExpiry converts any accepted expiry form to ISO YYYY-MM-DD.
// Unparsable input yields an empty string rather than an error: resolution
// can still proceed on name+strike+kind alone.
func NormalizeExpiry(expiry string) string {
	t, err := ParseExpiry(expiry)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// titleizeLetters uppercases the first letter of each letter-run and lowercases
// the rest, so "30DEC2025" and "30-dec-2025" both parse with Go month layouts.
func titleizeLetters(s string) string {
	out := []rune(s)
	inRun := false
	for i, r := range out {
		if unicode.IsLetter(r) {
			if inRun {
				out[i] = unicode.ToLower(r)
			} else {
				out[i] = unicode.ToUpper(r)
			}
			inRun = true
		} else {
			inRun = false
		}
	}
	return string(out)
}
