package reconcile

import (
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
)

var reimbursementKeywords = []string{"refund", "reimbursement", "reimbursed", "reversal", "reversed"}

// IsReimbursement reports whether an unmatched B-side record is money coming back.
func IsReimbursement(r domain.Record) bool {
	if r.Amount.IsNegative() {
		return true
	}
	desc := strings.ToLower(r.Description)
	for _, kw := range reimbursementKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// Classify splits residual B-side records into reimbursements and genuinely unmatched ones.
func Classify(restB domain.RecordSet) (reimbursements, unmatched domain.RecordSet) {
	for _, r := range restB {
		if IsReimbursement(r) {
			reimbursements = append(reimbursements, r)
			continue
		}
		unmatched = append(unmatched, r)
	}
	return reimbursements, unmatched
}
