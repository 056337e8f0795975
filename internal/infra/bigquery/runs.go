package bigquery

import (
	bq "github.com/dvloznov/ledger-reconciler/internal/bigquery"
)

// Re-export row types from the shared package so callers only import infra.
type RunRow = bq.RunRow
type RecordRow = bq.RecordRow
type RunTotals = bq.RunTotals

const (
	runsTable    = "reconciliation_runs"
	recordsTable = "reconciled_records"

	// maxErrorMessageLen caps error_message so a long wrapped chain fits the column.
	maxErrorMessageLen = 2000
)
