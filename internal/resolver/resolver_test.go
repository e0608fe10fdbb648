package resolver

import (
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rsharma-dev/nifty-strangler/internal/broker"
	"github.com/rsharma-dev/nifty-strangler/internal/models"
)

func testRequest() Request {
	return Request{Name: "NIFTY", Expiry: "2025-12-30", Strike: 25000, Kind: models.Call}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestBuildSymbolVariantsOrderAndDedup(t *testing.T) {
	variants := BuildSymbolVariants(testRequest())

	wantPrefix := []string{
		"NIFTY30DEC2525000CE",
		"NIFTY25000CE",
		"NIFTYCE25000",
		"NIFTY30DEC2525000",
		"NIFTY25000",
		"25000CE",
	}
	if len(variants) < len(wantPrefix) {
		t.Fatalf("got %d variants, want at least %d", len(variants), len(wantPrefix))
	}
	for i, w := range wantPrefix {
		if variants[i] != w {
			t.Errorf("variant[%d] = %q, want %q", i, variants[i], w)
		}
	}

	// Lowercase duplicates follow, and the list holds no repeats.
	seen := make(map[string]bool)
	var hasLower bool
	for _, v := range variants {
		if seen[v] {
			t.Errorf("duplicate variant %q", v)
		}
		seen[v] = true
		if v == strings.ToLower(v) && v != strings.ToUpper(v) {
			hasLower = true
		}
	}
	if !hasLower {
		t.Error("expected lowercase variants in the list")
	}
}

func TestBuildSymbolVariantsUnparsableExpiry(t *testing.T) {
	req := testRequest()
	req.Expiry = "next tuesday"
	variants := BuildSymbolVariants(req)

	// The expiry-bearing spellings collapse into their expiry-free forms,
	// so the raw text never leaks into a lookup.
	for _, v := range variants {
		if strings.Contains(strings.ToLower(v), "tuesday") {
			t.Errorf("variant %q embeds the unparsable expiry text", v)
		}
	}
	want := []string{"NIFTY25000CE", "NIFTYCE25000", "NIFTY25000", "25000CE"}
	for i, w := range want {
		if i >= len(variants) || variants[i] != w {
			t.Errorf("variant[%d] = %q, want %q", i, variants[i], w)
		}
	}
}

func TestBuildSymbolVariantsDeterministic(t *testing.T) {
	a := BuildSymbolVariants(testRequest())
	b := BuildSymbolVariants(testRequest())
	if len(a) != len(b) {
		t.Fatalf("variant count differs between calls: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("variant[%d] differs: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestBuildSymbolVariantsTruncatesStrike(t *testing.T) {
	req := testRequest()
	req.Strike = 25000.75
	variants := BuildSymbolVariants(req)
	for _, v := range variants {
		if strings.Contains(v, ".") {
			t.Errorf("variant %q should embed the integer strike", v)
		}
	}
}

func TestMatchEntriesSubstringWinsOverStrike(t *testing.T) {
	entries := []broker.CatalogEntry{
		{TradingSymbol: "BANKNIFTY30DEC2525000CE", Token: "1", Strike: 25000},
		{TradingSymbol: "NIFTY30DEC2525000CE", Token: "2", Strike: 25000},
	}
	req := testRequest()
	entry, ok := MatchEntries(entries, req, BuildSymbolVariants(req), Policy{})
	if !ok {
		t.Fatal("expected a match")
	}
	// The most specific variant also matches the BANKNIFTY symbol as a
	// substring, and entry order breaks the tie.
	if entry.Token != "1" {
		t.Errorf("matched token %s, want first substring hit", entry.Token)
	}
}

func TestMatchEntriesCaseInsensitive(t *testing.T) {
	entries := []broker.CatalogEntry{
		{TradingSymbol: "nifty30dec2525000ce", Token: "7", Strike: 25000},
	}
	req := testRequest()
	entry, ok := MatchEntries(entries, req, BuildSymbolVariants(req), Policy{})
	if !ok || entry.Token != "7" {
		t.Fatalf("case-insensitive match failed: %+v ok=%v", entry, ok)
	}
}

func TestMatchEntriesStrikeFallback(t *testing.T) {
	entries := []broker.CatalogEntry{
		{TradingSymbol: "weird-name-1", Token: "10", Strike: 24000, OptionType: "CE"},
		{TradingSymbol: "weird-name-2", Token: "11", Strike: 25000.004, OptionType: "CE"},
	}
	req := testRequest()
	entry, ok := MatchEntries(entries, req, BuildSymbolVariants(req), Policy{})
	if !ok {
		t.Fatal("expected strike-equality fallback to match")
	}
	if entry.Token != "11" {
		t.Errorf("matched token %s, want 11 (strike equal at two decimals)", entry.Token)
	}
}

func TestMatchEntriesKindMismatchPolicy(t *testing.T) {
	entries := []broker.CatalogEntry{
		{TradingSymbol: "weird-name", Token: "20", Strike: 25000, OptionType: "PE"},
	}
	req := testRequest() // wants CE
	variants := BuildSymbolVariants(req)

	if _, ok := MatchEntries(entries, req, variants, Policy{AllowKindMismatch: true}); !ok {
		t.Error("lenient policy should accept a kind mismatch on strike fallback")
	}
	if _, ok := MatchEntries(entries, req, variants, Policy{AllowKindMismatch: false}); ok {
		t.Error("strict policy should reject a kind mismatch on strike fallback")
	}
}

func TestMatchEntriesSkipsTokenlessEntries(t *testing.T) {
	entries := []broker.CatalogEntry{
		{TradingSymbol: "NIFTY30DEC2525000CE", Strike: 25000},
	}
	req := testRequest()
	if _, ok := MatchEntries(entries, req, BuildSymbolVariants(req), Policy{}); ok {
		t.Error("an entry without a token must never match")
	}
}

type stubSource struct {
	name   string
	result Result
	hit    bool
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Lookup(Request, []string, Policy) (Result, bool, error) {
	s.calls++
	return s.result, s.hit, s.err
}

func TestResolverFirstSourceWins(t *testing.T) {
	first := &stubSource{name: "first", hit: true, result: Result{Token: "111"}}
	second := &stubSource{name: "second", hit: true, result: Result{Token: "222"}}
	r := New(Policy{}, quietLogger(), first, second)

	res, err := r.Resolve(testRequest())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Token != "111" || res.Source != "first" {
		t.Errorf("got %+v, want token 111 from first", res)
	}
	if second.calls != 0 {
		t.Error("second source should not be consulted after a hit")
	}
}

func TestResolverContinuesPastErrors(t *testing.T) {
	broken := &stubSource{name: "broken", err: errors.New("boom")}
	working := &stubSource{name: "working", hit: true, result: Result{Token: "333"}}
	r := New(Policy{}, quietLogger(), broken, working)

	res, err := r.Resolve(testRequest())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Token != "333" || res.Source != "working" {
		t.Errorf("got %+v, want token 333 from working", res)
	}
}

func TestResolverNotFound(t *testing.T) {
	r := New(Policy{}, quietLogger(), &stubSource{name: "empty"})
	_, err := r.Resolve(testRequest())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolverRejectsEmptyName(t *testing.T) {
	r := New(Policy{}, quietLogger())
	req := testRequest()
	req.Name = " "
	if _, err := r.Resolve(req); err == nil {
		t.Error("empty underlying should be rejected")
	}
}
