package bigquery

import (
	"context"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
)

// Run statuses stored in reconciliation_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// RunRepository provides an interface for reconciliation run history.
type RunRepository interface {
	// StartRun inserts a new run with status=RUNNING.
	StartRun(ctx context.Context, runID, profile string) error

	// MarkRunFailed sets status=FAILED, finished_ts and error_message for a run.
	MarkRunFailed(ctx context.Context, runID string, runErr error)

	// MarkRunSucceeded sets status=SUCCESS, finished_ts and the bucket totals for a run.
	MarkRunSucceeded(ctx context.Context, runID string, totals RunTotals) error

	// InsertRecords inserts a batch of bucketed records for a run.
	InsertRecords(ctx context.Context, rows []*RecordRow) error

	// ListRuns retrieves the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*RunRow, error)
}

// RunTotals holds the bucket sizes written when a run completes.
type RunTotals struct {
	Matched        int64
	UnmatchedA     int64
	UnmatchedB     int64
	Reimbursements int64
	DuplicatesA    int64
	DuplicatesB    int64
	ParseFailures  int64
	Input          int64
	Notice         string
	Violation      string
}

// RunRow represents a reconciliation run in BigQuery.
type RunRow struct {
	RunID   string `bigquery:"run_id"`  // REQUIRED
	Profile string `bigquery:"profile"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string `bigquery:"status"`        // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	Matched        bigquery.NullInt64 `bigquery:"matched"`
	UnmatchedA     bigquery.NullInt64 `bigquery:"unmatched_a"`
	UnmatchedB     bigquery.NullInt64 `bigquery:"unmatched_b"`
	Reimbursements bigquery.NullInt64 `bigquery:"reimbursements"`
	DuplicatesA    bigquery.NullInt64 `bigquery:"duplicates_a"`
	DuplicatesB    bigquery.NullInt64 `bigquery:"duplicates_b"`
	ParseFailures  bigquery.NullInt64 `bigquery:"parse_failures"`
	InputRecords   bigquery.NullInt64 `bigquery:"input_records"`

	Notice    bigquery.NullString `bigquery:"notice"`
	Violation bigquery.NullString `bigquery:"violation"`
}

// RecordRow represents one bucketed record of a run.
type RecordRow struct {
	RunID    string `bigquery:"run_id"`    // REQUIRED
	Side     string `bigquery:"side"`      // A or B
	Bucket   string `bigquery:"bucket"`    // matched, unmatched_a, ...
	Position int64  `bigquery:"position"`  // order within the bucket
	SourceID string `bigquery:"source_id"` // REQUIRED

	Date            bigquery.NullDate `bigquery:"date"`
	Description     string            `bigquery:"description"`
	Category        string            `bigquery:"category"`
	TransactionType string            `bigquery:"transaction_type"`
	Amount          *big.Rat          `bigquery:"amount"` // NUMERIC

	ParseFailed   bool   `bigquery:"parse_failed"`
	FailureReason string `bigquery:"failure_reason"`
}
