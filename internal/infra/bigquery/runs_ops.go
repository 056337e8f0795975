package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/ledger-reconciler/internal/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
	"google.golang.org/api/iterator"
)

// StartRunWithClient inserts a new row into reconciliation_runs with status=RUNNING.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, dataset, runID, profile string) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			profile,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@profile,
			@started_ts,
			@status
		)
	`, dataset, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "profile", Value: profile},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: bq.RunStatusRunning},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	return nil
}

// MarkRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Update errors are logged, not returned.
func MarkRunFailedWithClient(ctx context.Context, client *bigquery.Client, dataset, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorMessageLen {
			errMsg = errMsg[:maxErrorMessageLen]
		}
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, dataset, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: updating run")
	}
}

// MarkRunSucceededWithClient sets status=SUCCESS, finished_ts and the bucket totals.
func MarkRunSucceededWithClient(ctx context.Context, client *bigquery.Client, dataset, runID string, totals RunTotals) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    matched = @matched,
		    unmatched_a = @unmatched_a,
		    unmatched_b = @unmatched_b,
		    reimbursements = @reimbursements,
		    duplicates_a = @duplicates_a,
		    duplicates_b = @duplicates_b,
		    parse_failures = @parse_failures,
		    input_records = @input_records,
		    notice = @notice,
		    violation = @violation
		WHERE run_id = @run_id
	`, dataset, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "matched", Value: totals.Matched},
		{Name: "unmatched_a", Value: totals.UnmatchedA},
		{Name: "unmatched_b", Value: totals.UnmatchedB},
		{Name: "reimbursements", Value: totals.Reimbursements},
		{Name: "duplicates_a", Value: totals.DuplicatesA},
		{Name: "duplicates_b", Value: totals.DuplicatesB},
		{Name: "parse_failures", Value: totals.ParseFailures},
		{Name: "input_records", Value: totals.Input},
		{Name: "notice", Value: totals.Notice},
		{Name: "violation", Value: totals.Violation},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// ListRunsWithClient retrieves the most recent runs, newest first.
func ListRunsWithClient(ctx context.Context, client *bigquery.Client, dataset string, limit int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 50
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			profile,
			started_ts,
			finished_ts,
			status,
			error_message,
			matched,
			unmatched_a,
			unmatched_b,
			reimbursements,
			duplicates_a,
			duplicates_b,
			parse_failures,
			input_records,
			notice,
			violation
		FROM %s.%s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, dataset, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRunsWithClient: reading query: %w", err)
	}

	var runs []*RunRow
	for {
		var row RunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRunsWithClient: iterating: %w", err)
		}
		runs = append(runs, &row)
	}

	return runs, nil
}

func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
