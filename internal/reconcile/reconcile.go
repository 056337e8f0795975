package reconcile

import (
	"github.com/dvloznov/ledger-reconciler/internal/domain"
)

// Result places every usable input record in exactly one bucket.
// Parse failure markers are carried separately and are not bucketed.
type Result struct {
	Matched        []Match          `json:"matched"`
	UnmatchedA     domain.RecordSet `json:"unmatched_a"`
	UnmatchedB     domain.RecordSet `json:"unmatched_b"`
	Reimbursements domain.RecordSet `json:"reimbursements"`
	DuplicatesA    domain.RecordSet `json:"duplicates_a"`
	DuplicatesB    domain.RecordSet `json:"duplicates_b"`

	FailuresA domain.RecordSet `json:"failures_a,omitempty"`
	FailuresB domain.RecordSet `json:"failures_b,omitempty"`

	// InsufficientData is set when either side had no usable record.
	// Matching still runs, so every record lands in an unmatched bucket.
	InsufficientData bool   `json:"insufficient_data"`
	Notice           string `json:"notice,omitempty"`

	// InputA and InputB count the usable records on each side.
	InputA int `json:"input_a"`
	InputB int `json:"input_b"`
}

// Reconcile deduplicates both sides, matches them with m and classifies the leftovers.
func Reconcile(a, b domain.RecordSet, m *Matcher) Result {
	okA, failedA := a.Split()
	okB, failedB := b.Split()

	res := Result{
		FailuresA: failedA,
		FailuresB: failedB,
		InputA:    len(okA),
		InputB:    len(okB),
	}
	switch {
	case len(okA) == 0 && len(okB) == 0:
		res.InsufficientData = true
		res.Notice = "not enough data: neither side has a complete record"
	case len(okA) == 0:
		res.InsufficientData = true
		res.Notice = "not enough data: side A has no complete record"
	case len(okB) == 0:
		res.InsufficientData = true
		res.Notice = "not enough data: side B has no complete record"
	}

	uniqueA, dupA := Dedup(okA)
	uniqueB, dupB := Dedup(okB)
	res.DuplicatesA = dupA
	res.DuplicatesB = dupB

	matches, restA, restB := m.Match(uniqueA, uniqueB)
	res.Matched = matches
	res.UnmatchedA = restA
	res.Reimbursements, res.UnmatchedB = Classify(restB)
	return res
}
