package report

import (
	"fmt"

	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
)

// Summary holds the per-bucket counts of a reconciliation result.
type Summary struct {
	Matched        int `json:"matched"`
	UnmatchedA     int `json:"unmatched_a"`
	UnmatchedB     int `json:"unmatched_b"`
	Reimbursements int `json:"reimbursements"`
	DuplicatesA    int `json:"duplicates_a"`
	DuplicatesB    int `json:"duplicates_b"`
	ParseFailures  int `json:"parse_failures"`
	Input          int `json:"input"`
}

// Bucketed is the number of input records accounted for by the buckets.
// A match accounts for two records.
func (s Summary) Bucketed() int {
	return 2*s.Matched + s.UnmatchedA + s.UnmatchedB + s.Reimbursements + s.DuplicatesA + s.DuplicatesB
}

// Counts returns the bucket sizes keyed by bucket name.
func (s Summary) Counts() map[string]int {
	return map[string]int{
		"matched":        s.Matched,
		"unmatched_a":    s.UnmatchedA,
		"unmatched_b":    s.UnmatchedB,
		"reimbursements": s.Reimbursements,
		"duplicates_a":   s.DuplicatesA,
		"duplicates_b":   s.DuplicatesB,
		"parse_failures": s.ParseFailures,
	}
}

// ConsistencyViolation means the buckets do not account for every input record.
type ConsistencyViolation struct {
	Input    int
	Bucketed int
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation: %d input records but %d bucketed", e.Input, e.Bucketed)
}

// Summarize counts the buckets of res and checks that no record was lost or
// counted twice. The returned error is a *ConsistencyViolation.
func Summarize(res reconcile.Result) (Summary, error) {
	s := Summary{
		Matched:        len(res.Matched),
		UnmatchedA:     len(res.UnmatchedA),
		UnmatchedB:     len(res.UnmatchedB),
		Reimbursements: len(res.Reimbursements),
		DuplicatesA:    len(res.DuplicatesA),
		DuplicatesB:    len(res.DuplicatesB),
		ParseFailures:  len(res.FailuresA) + len(res.FailuresB),
		Input:          res.InputA + res.InputB,
	}
	if got := s.Bucketed(); got != s.Input {
		return s, &ConsistencyViolation{Input: s.Input, Bucketed: got}
	}
	return s, nil
}
