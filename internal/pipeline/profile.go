package pipeline

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
	"github.com/dvloznov/ledger-reconciler/internal/report"
)

// Side selects the documents of one side of a reconciliation and the
// grammar used to read them.
type Side struct {
	// Prefix is the storage prefix to list, e.g. "expenses/".
	Prefix string `yaml:"prefix" json:"prefix"`

	// Contains, when set, keeps only files whose base name contains it
	// (case-insensitive).
	Contains string `yaml:"contains,omitempty" json:"contains,omitempty"`

	Kind domain.RecordKind `yaml:"kind" json:"kind"`

	// SubstringKeywords matches category and type keywords anywhere in a
	// line, for documents that print them as "Category: Meals".
	SubstringKeywords bool `yaml:"substring_keywords,omitempty" json:"substring_keywords,omitempty"`
}

// Selects reports whether the object name belongs to this side.
func (s Side) Selects(name string) bool {
	if !strings.HasPrefix(name, s.Prefix) || strings.HasSuffix(name, "/") {
		return false
	}
	if s.Contains == "" {
		return true
	}
	return strings.Contains(strings.ToLower(path.Base(name)), strings.ToLower(s.Contains))
}

// Document builds a Document read with this side's grammar.
func (s Side) Document(sourceID string, lines []string) Document {
	return Document{
		SourceID:          sourceID,
		Kind:              s.Kind,
		Lines:             lines,
		SubstringKeywords: s.SubstringKeywords,
	}
}

// Profile is one reconciliation configuration: which documents form each
// side and how they are matched and labeled.
type Profile struct {
	Name   string        `yaml:"name" json:"name"`
	A      Side          `yaml:"a" json:"a"`
	B      Side          `yaml:"b" json:"b"`
	Labels report.Labels `yaml:"labels" json:"labels"`

	DateToleranceDays int `yaml:"date_tolerance_days" json:"date_tolerance_days"`

	// KeyPattern overrides the description key regexp. Empty means the default.
	KeyPattern string `yaml:"key_pattern,omitempty" json:"key_pattern,omitempty"`
}

// Validate checks that the profile can be run.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile: name is required")
	}
	for _, s := range []struct {
		label string
		side  Side
	}{{"a", p.A}, {"b", p.B}} {
		if !s.side.Kind.Valid() {
			return fmt.Errorf("profile %q: side %s: unknown kind %q", p.Name, s.label, s.side.Kind)
		}
	}
	if p.DateToleranceDays < 0 {
		return fmt.Errorf("profile %q: date_tolerance_days must not be negative", p.Name)
	}
	if p.KeyPattern != "" {
		if _, err := regexp.Compile(p.KeyPattern); err != nil {
			return fmt.Errorf("profile %q: key_pattern: %w", p.Name, err)
		}
	}
	return nil
}

// MatchConfig returns the matcher settings of the profile.
func (p Profile) MatchConfig() (reconcile.MatchConfig, error) {
	cfg := reconcile.DefaultMatchConfig()
	cfg.DateToleranceDays = p.DateToleranceDays
	if p.KeyPattern != "" {
		re, err := regexp.Compile(p.KeyPattern)
		if err != nil {
			return cfg, fmt.Errorf("MatchConfig: compiling key pattern: %w", err)
		}
		cfg.KeyPattern = re
	}
	return cfg, nil
}

// labels falls back to the default labels for any empty name.
func (p Profile) labels() report.Labels {
	l := p.Labels
	if l.A == "" {
		l.A = report.DefaultLabels.A
	}
	if l.B == "" {
		l.B = report.DefaultLabels.B
	}
	return l
}

// BuiltinProfiles returns the profiles available without a profiles file.
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileExpenses: {
			Name:   ProfileExpenses,
			A:      Side{Prefix: "expenses/", Kind: domain.KindExpense},
			B:      Side{Prefix: "statement/", Contains: "saving", Kind: domain.KindStatement},
			Labels: report.Labels{A: "Expenses", B: "Statement Entries"},
		},
		ProfileInvoices: {
			Name:   ProfileInvoices,
			A:      Side{Prefix: "invoices/", Kind: domain.KindInvoice},
			B:      Side{Prefix: "statement/", Contains: "current", Kind: domain.KindLedger},
			Labels: report.Labels{A: "Invoices", B: "Account Entries"},
		},
	}
}

// LookupProfile returns the named profile from profiles.
func LookupProfile(profiles map[string]Profile, name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		names := make([]string, 0, len(profiles))
		for n := range profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}
