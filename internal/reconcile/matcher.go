package reconcile

import (
	"regexp"
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultKeyPattern finds invoice references such as INV-20250620-996A7766.
var DefaultKeyPattern = regexp.MustCompile(`(?i)\bINV-[A-Z0-9-]+`)

var cent = decimal.New(1, -2)

// MatchConfig holds the variation points of the matching predicate.
type MatchConfig struct {
	// DateToleranceDays is the largest allowed date gap. Zero means same day only.
	DateToleranceDays int
	// KeyPattern extracts a reference key from the A-side description.
	// When it finds nothing, or is nil, descriptions must be equal instead.
	KeyPattern *regexp.Regexp
}

// DefaultMatchConfig is exact-date matching with invoice reference keys.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{KeyPattern: DefaultKeyPattern}
}

// Match pairs one A-side record with one B-side record.
type Match struct {
	A domain.Record `json:"a"`
	B domain.Record `json:"b"`
}

// Matcher pairs records greedily: each A record, in order, takes the first
// unconsumed B record that satisfies Pairs.
type Matcher struct {
	cfg MatchConfig
}

// NewMatcher creates a matcher. A negative tolerance is treated as zero.
func NewMatcher(cfg MatchConfig) *Matcher {
	if cfg.DateToleranceDays < 0 {
		cfg.DateToleranceDays = 0
	}
	return &Matcher{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Matcher) Config() MatchConfig {
	return m.cfg
}

// Match returns matches in discovery order and the residual records of each side.
func (m *Matcher) Match(a, b domain.RecordSet) (matches []Match, restA, restB domain.RecordSet) {
	consumed := make([]bool, len(b))
	for _, ra := range a {
		found := -1
		for j, rb := range b {
			if consumed[j] || !m.Pairs(ra, rb) {
				continue
			}
			found = j
			break
		}
		if found < 0 {
			restA = append(restA, ra)
			continue
		}
		consumed[found] = true
		matches = append(matches, Match{A: ra, B: b[found]})
	}
	for j, rb := range b {
		if !consumed[j] {
			restB = append(restB, rb)
		}
	}
	return matches, restA, restB
}

// Pairs reports whether a and b describe the same transaction.
func (m *Matcher) Pairs(a, b domain.Record) bool {
	if !a.Amount.Sub(b.Amount).Abs().LessThan(cent) {
		return false
	}
	if !m.descriptionsAgree(a.Description, b.Description) {
		return false
	}
	gap := a.Date.DaysSince(b.Date)
	if gap < 0 {
		gap = -gap
	}
	return gap <= m.cfg.DateToleranceDays
}

func (m *Matcher) descriptionsAgree(a, b string) bool {
	if m.cfg.KeyPattern != nil {
		if key := m.cfg.KeyPattern.FindString(a); key != "" {
			return strings.Contains(strings.ToLower(b), strings.ToLower(key))
		}
	}
	return foldDescription(a) == foldDescription(b)
}

func foldDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
