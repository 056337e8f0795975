package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/extract"
	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2-Jan-2006",
	"2/1/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
}

var (
	commaSpace      = regexp.MustCompile(`,\s*`)
	spaces          = regexp.MustCompile(`\s+`)
	currencyOrLabel = regexp.MustCompile(`(?i)(INR|USD|EUR|GBP|Rs\.?|\$|₹|€|£|total\s*:?|amount\s*:?)`)
)

// Records converts candidates into records. Failure markers pass through
// unchanged; a candidate whose date or amount cannot be parsed is downgraded.
func Records(cands []extract.Candidate) domain.RecordSet {
	out := make(domain.RecordSet, 0, len(cands))
	for _, c := range cands {
		out = append(out, Record(c))
	}
	return out
}

// Record normalizes a single candidate.
func Record(c extract.Candidate) domain.Record {
	r := domain.Record{
		SourceID:    c.SourceID,
		Description: strings.TrimSpace(c.Description),
		Category:    c.Category,
		Type:        c.Type,
	}
	if c.Failed {
		r.ParseFailed = true
		r.FailureReason = c.FailureReason
		return r
	}

	d, err := Date(c.DateToken)
	if err != nil {
		r.ParseFailed = true
		r.FailureReason = err.Error()
		return r
	}
	r.Date = d

	amt, err := Amount(c.AmountToken)
	if err != nil {
		r.ParseFailed = true
		r.FailureReason = err.Error()
		return r
	}
	r.Amount = amt
	return r
}

// Date parses any of the supported date spellings into a calendar date.
func Date(token string) (civil.Date, error) {
	s := strings.TrimSpace(token)
	s = strings.ReplaceAll(s, ".", "")
	s = commaSpace.ReplaceAllString(s, ", ")
	s = spaces.ReplaceAllString(s, " ")
	s = strings.Replace(s, "Sept ", "Sep ", 1)

	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return civil.DateOf(t), nil
		}
		lastErr = err
	}
	return civil.Date{}, fmt.Errorf("invalid date %q: %w", token, lastErr)
}

// Amount parses a two-decimal amount, stripping currency tokens, labels,
// thousands separators and spaces. The result is rounded to cents.
func Amount(token string) (decimal.Decimal, error) {
	s := currencyOrLabel.ReplaceAllString(token, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.Join(strings.Fields(s), "")

	switch strings.Count(s, "-") {
	case 0:
	case 1:
		s = "-" + strings.Replace(s, "-", "", 1)
	default:
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: more than one sign", token)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", token, err)
	}
	return d.Round(2), nil
}
