package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
)

// Grammar describes which fields a document kind carries and how to recognise them.
type Grammar struct {
	Kind domain.RecordKind

	// Categories is the category vocabulary. Nil disables category detection.
	Categories      []string
	RequireCategory bool

	// Types maps lower-cased keywords to transaction types. Nil disables type detection.
	Types       map[string]domain.TransactionType
	RequireType bool

	// SubstringKeywords matches categories and types anywhere in the line
	// instead of requiring the whole line to be the keyword.
	SubstringKeywords bool

	// EntryLine, when set, recognises a line that carries a whole entry.
	EntryLine func(line string) (Candidate, bool)

	// SingleRecord treats the whole document as one record: dates never
	// start a new record and there is no description fallback.
	SingleRecord bool
	// LabeledAmounts only accepts amounts on a total line or the line after one.
	LabeledAmounts bool
	// Label extracts a description from a labeled line, e.g. "Invoice Number: X".
	Label func(line string) (string, bool)
	// DefaultDescription fills an empty description at the end of a single-record document.
	DefaultDescription string
	// DateLabels, when set, replaces the default date detection.
	DateLabels []*regexp.Regexp
}

var expenseCategories = []string{"Travel", "Meals", "Utilities", "Office Supplies"}

var statementCategories = []string{"Travel", "Meals", "Utilities", "Office Supplies", "Cash", "Personal", "Charges"}

var statementTypes = map[string]domain.TransactionType{
	"debit":      domain.TypeDebit,
	"credit":     domain.TypeCredit,
	"fee":        domain.TypeFee,
	"payment":    domain.TypeDebit,
	"withdrawal": domain.TypeDebit,
	"deposit":    domain.TypeCredit,
	"refund":     domain.TypeCredit,
}

// ledgerLine is "DATE DESCRIPTION TYPE AMOUNT [BALANCE]". A line without
// a type column is not an entry.
var ledgerLine = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(.+?)\s+(?i:(debit|credit|fee))\s+(-?[\d,]+\.\d{2})(?:\s+(-?[\d,]+\.\d{2}))?$`)

// Invoice labels may follow other text on the same line: PDF table rows
// are joined into one line with their neighbouring column.
var (
	invoiceNumber = regexp.MustCompile(`(?i)\binvoice\s+(?:number|no\.?)\s*:\s*(\S+)`)
	invoiceDate   = labeledDatePatterns(`(?i:\binvoice\s+date\s*:\s*)`)
)

// ForKind returns the built-in grammar for k.
func ForKind(k domain.RecordKind) (Grammar, error) {
	switch k {
	case domain.KindExpense:
		return Grammar{
			Kind:            k,
			Categories:      expenseCategories,
			RequireCategory: true,
		}, nil
	case domain.KindStatement:
		return Grammar{
			Kind:            k,
			Categories:      statementCategories,
			RequireCategory: true,
			Types:           statementTypes,
			RequireType:     true,
		}, nil
	case domain.KindLedger:
		return Grammar{
			Kind:      k,
			EntryLine: parseLedgerLine,
		}, nil
	case domain.KindInvoice:
		return Grammar{
			Kind:               k,
			SingleRecord:       true,
			LabeledAmounts:     true,
			Label:              parseInvoiceNumber,
			DefaultDescription: "Invoice Transaction",
			DateLabels:         invoiceDate,
		}, nil
	}
	return Grammar{}, fmt.Errorf("ForKind: unknown record kind %q", k)
}

func parseLedgerLine(line string) (Candidate, bool) {
	m := ledgerLine.FindStringSubmatch(line)
	if m == nil {
		return Candidate{}, false
	}
	return Candidate{
		DateToken:   m[1],
		Description: strings.TrimSpace(m[2]),
		Type:        domain.TransactionType(strings.ToLower(m[3])),
		AmountToken: m[4],
	}, true
}

func parseInvoiceNumber(line string) (string, bool) {
	m := invoiceNumber.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return "Invoice " + m[1], true
}

func (g Grammar) matchCategory(line string) (string, bool) {
	for _, c := range g.Categories {
		if g.keywordHit(line, c) {
			return c, true
		}
	}
	return "", false
}

func (g Grammar) matchType(line string) (domain.TransactionType, bool) {
	if g.Types == nil {
		return "", false
	}
	if t, ok := g.Types[strings.ToLower(line)]; ok {
		return t, true
	}
	if !g.SubstringKeywords {
		return "", false
	}
	// Map iteration order is random, so scan the keywords in a fixed order.
	lower := strings.ToLower(line)
	for _, kw := range []string{"withdrawal", "deposit", "payment", "refund", "debit", "credit", "fee"} {
		if t, ok := g.Types[kw]; ok && strings.Contains(lower, kw) {
			return t, true
		}
	}
	return "", false
}

func (g Grammar) keywordHit(line, keyword string) bool {
	if strings.EqualFold(line, keyword) {
		return true
	}
	return g.SubstringKeywords && strings.Contains(strings.ToLower(line), strings.ToLower(keyword))
}
