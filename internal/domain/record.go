package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// RecordKind selects the field grammar used to read a document.
type RecordKind string

const (
	// KindExpense is an expense bill: date, description, category and amount.
	KindExpense RecordKind = "expense"
	// KindStatement is a savings statement entry with a category and a transaction type.
	KindStatement RecordKind = "statement"
	// KindLedger is a current-account ledger where one line carries one whole entry.
	KindLedger RecordKind = "ledger"
	// KindInvoice is a single invoice with labeled number, date and total.
	KindInvoice RecordKind = "invoice"
)

// Valid reports whether k is one of the known kinds.
func (k RecordKind) Valid() bool {
	switch k {
	case KindExpense, KindStatement, KindLedger, KindInvoice:
		return true
	}
	return false
}

// TransactionType is the direction of a statement entry. Empty means not applicable.
type TransactionType string

const (
	TypeDebit  TransactionType = "debit"
	TypeCredit TransactionType = "credit"
	TypeFee    TransactionType = "fee"
)

// Record is one financial line item after normalization.
// Records are never mutated once the normalizer has produced them.
type Record struct {
	SourceID    string          `json:"source_id"`
	Date        civil.Date      `json:"date"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Type        TransactionType `json:"transaction_type,omitempty"`
	Amount      decimal.Decimal `json:"amount"`

	ParseFailed   bool   `json:"parse_failed,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// AmountString renders the amount with exactly two fraction digits.
func (r Record) AmountString() string {
	return r.Amount.StringFixed(2)
}

// DateString renders the date as YYYY-MM-DD, or "" for a zero date.
func (r Record) DateString() string {
	if r.Date.IsZero() {
		return ""
	}
	return r.Date.String()
}

// RecordSet is an ordered collection of records from one category of documents.
// Order is document order, then line order.
type RecordSet []Record

// Split separates parse failure markers from usable records, keeping order.
func (s RecordSet) Split() (ok RecordSet, failed RecordSet) {
	for _, r := range s {
		if r.ParseFailed {
			failed = append(failed, r)
			continue
		}
		ok = append(ok, r)
	}
	return ok, failed
}
