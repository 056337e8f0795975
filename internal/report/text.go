package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
)

// Labels name the two sides in section headers, e.g. "Expenses" and "Statement Entries".
type Labels struct {
	A string `json:"a" yaml:"a"`
	B string `json:"b" yaml:"b"`
}

// DefaultLabels is used when a profile does not name its sides.
var DefaultLabels = Labels{A: "A", B: "B"}

// WriteText renders res as titled sections, one line per record, in bucket order.
func WriteText(w io.Writer, res reconcile.Result, labels Labels) error {
	var b strings.Builder

	matchedA := make(domain.RecordSet, 0, len(res.Matched))
	for _, m := range res.Matched {
		matchedA = append(matchedA, m.A)
	}

	section(&b, "Matched", matchedA)
	section(&b, "Unmatched "+labels.A, res.UnmatchedA)
	section(&b, "Unmatched "+labels.B, res.UnmatchedB)
	section(&b, "Reimbursements", res.Reimbursements)
	section(&b, "Duplicate "+labels.A, res.DuplicatesA)
	section(&b, "Duplicate "+labels.B, res.DuplicatesB)

	failures := append(append(domain.RecordSet{}, res.FailuresA...), res.FailuresB...)
	if len(failures) > 0 {
		b.WriteString("Parse Failures\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "  • %s: %s\n", f.SourceID, f.FailureReason)
		}
		b.WriteString("\n")
	}

	b.WriteString("Totals\n")
	fmt.Fprintf(&b, "  Matched: %d\n", len(res.Matched))
	fmt.Fprintf(&b, "  Unmatched %s: %d\n", labels.A, len(res.UnmatchedA))
	fmt.Fprintf(&b, "  Unmatched %s: %d\n", labels.B, len(res.UnmatchedB))
	fmt.Fprintf(&b, "  Reimbursements: %d\n", len(res.Reimbursements))
	fmt.Fprintf(&b, "  Duplicate %s: %d\n", labels.A, len(res.DuplicatesA))
	fmt.Fprintf(&b, "  Duplicate %s: %d\n", labels.B, len(res.DuplicatesB))
	if res.InsufficientData {
		fmt.Fprintf(&b, "\nNote: %s\n", res.Notice)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Text is WriteText into a string.
func Text(res reconcile.Result, labels Labels) string {
	var b strings.Builder
	_ = WriteText(&b, res, labels)
	return b.String()
}

func section(b *strings.Builder, title string, recs domain.RecordSet) {
	b.WriteString(title + "\n")
	if len(recs) == 0 {
		b.WriteString("  (none)\n\n")
		return
	}
	for _, r := range recs {
		b.WriteString(Line(r) + "\n")
	}
	b.WriteString("\n")
}

// Line formats one record as "  • <amount> on <date> - <description>".
func Line(r domain.Record) string {
	return fmt.Sprintf("  • %s on %s - %s", r.AmountString(), r.DateString(), r.Description)
}
