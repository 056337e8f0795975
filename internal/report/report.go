package report

import (
	"errors"

	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
)

// Report bundles the rendered outputs of one reconciliation.
type Report struct {
	Summary Summary
	Text    string
	// Violation is set when the conservation check failed.
	Violation *ConsistencyViolation
}

// Build summarizes res and renders its text form. A conservation failure
// is returned in Violation rather than as an error so callers can still
// publish what was produced.
func Build(res reconcile.Result, labels Labels) Report {
	s, err := Summarize(res)
	rep := Report{Summary: s, Text: Text(res, labels)}
	var cv *ConsistencyViolation
	if errors.As(err, &cv) {
		rep.Violation = cv
	}
	return rep
}
