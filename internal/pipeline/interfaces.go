package pipeline

import (
	"context"

	"github.com/dvloznov/ledger-reconciler/internal/advisor"
	bq "github.com/dvloznov/ledger-reconciler/internal/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/gcs"
)

// StorageService is an interface for listing, fetching and uploading documents.
type StorageService = gcs.StorageService

// RunRepository records run history. It is optional for a Runner.
type RunRepository = bq.RunRepository

// Advisor proposes extra pairings for records the matcher left unmatched.
// Its output is advisory and never changes the buckets.
type Advisor interface {
	Suggest(ctx context.Context, unmatchedA, unmatchedB domain.RecordSet) ([]advisor.Suggestion, error)
}
