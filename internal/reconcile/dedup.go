package reconcile

import (
	"github.com/dvloznov/ledger-reconciler/internal/domain"
)

type dedupKey struct {
	date        string
	amount      string
	description string
}

func keyOf(r domain.Record) dedupKey {
	return dedupKey{
		date:        r.DateString(),
		amount:      r.AmountString(),
		description: r.Description,
	}
}

// Dedup splits set into first occurrences and later repeats of the same
// (date, amount, description). Both outputs keep the input order.
func Dedup(set domain.RecordSet) (unique, duplicates domain.RecordSet) {
	seen := make(map[dedupKey]struct{}, len(set))
	for _, r := range set {
		k := keyOf(r)
		if _, ok := seen[k]; ok {
			duplicates = append(duplicates, r)
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, r)
	}
	return unique, duplicates
}
