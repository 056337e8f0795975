package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
)

// insertBatchSize bounds the rows sent in one streaming insert.
const insertBatchSize = 500

// InsertRecordsWithClient inserts a batch of RecordRow into reconciled_records.
func InsertRecordsWithClient(ctx context.Context, client *bigquery.Client, dataset string, rows []*RecordRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.Dataset(dataset).Table(recordsTable).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertRecordsWithClient: inserting rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// RecordRows flattens a result into one row per bucketed record plus one row
// per parse failure. Matched pairs produce an A row and a B row.
func RecordRows(runID string, res reconcile.Result) []*RecordRow {
	var rows []*RecordRow
	add := func(side, bucket string, set domain.RecordSet) {
		for i, r := range set {
			rows = append(rows, recordRow(runID, side, bucket, i, r))
		}
	}

	for i, m := range res.Matched {
		rows = append(rows,
			recordRow(runID, "A", "matched", i, m.A),
			recordRow(runID, "B", "matched", i, m.B),
		)
	}
	add("A", "unmatched_a", res.UnmatchedA)
	add("B", "unmatched_b", res.UnmatchedB)
	add("B", "reimbursements", res.Reimbursements)
	add("A", "duplicates_a", res.DuplicatesA)
	add("B", "duplicates_b", res.DuplicatesB)
	add("A", "parse_failures", res.FailuresA)
	add("B", "parse_failures", res.FailuresB)
	return rows
}

func recordRow(runID, side, bucket string, pos int, r domain.Record) *RecordRow {
	row := &RecordRow{
		RunID:           runID,
		Side:            side,
		Bucket:          bucket,
		Position:        int64(pos),
		SourceID:        r.SourceID,
		Description:     r.Description,
		Category:        r.Category,
		TransactionType: string(r.Type),
		ParseFailed:     r.ParseFailed,
		FailureReason:   r.FailureReason,
	}
	if !r.Date.IsZero() {
		row.Date = bigquery.NullDate{Date: r.Date, Valid: true}
	}
	if !r.ParseFailed {
		row.Amount = r.Amount.Rat()
	}
	return row
}
