package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/ledger-reconciler/internal/bigquery"
)

// Re-export the interface from the shared package for callers of infra.
type RunRepository = bq.RunRepository

// BigQueryRunRepository is the concrete implementation of RunRepository
// that interacts with BigQuery. It holds a shared BigQuery client to avoid
// creating a new connection for each operation.
type BigQueryRunRepository struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryRunRepository creates a new instance of BigQueryRunRepository
// with a shared BigQuery client.
func NewBigQueryRunRepository(ctx context.Context, projectID, dataset string) (*BigQueryRunRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRunRepository: creating client: %w", err)
	}
	return &BigQueryRunRepository{
		client:  client,
		dataset: dataset,
	}, nil
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryRunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// StartRun delegates to StartRunWithClient with the shared client.
func (r *BigQueryRunRepository) StartRun(ctx context.Context, runID, profile string) error {
	return StartRunWithClient(ctx, r.client, r.dataset, runID, profile)
}

// MarkRunFailed delegates to MarkRunFailedWithClient with the shared client.
func (r *BigQueryRunRepository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	MarkRunFailedWithClient(ctx, r.client, r.dataset, runID, runErr)
}

// MarkRunSucceeded delegates to MarkRunSucceededWithClient with the shared client.
func (r *BigQueryRunRepository) MarkRunSucceeded(ctx context.Context, runID string, totals RunTotals) error {
	return MarkRunSucceededWithClient(ctx, r.client, r.dataset, runID, totals)
}

// InsertRecords delegates to InsertRecordsWithClient with the shared client.
func (r *BigQueryRunRepository) InsertRecords(ctx context.Context, rows []*RecordRow) error {
	return InsertRecordsWithClient(ctx, r.client, r.dataset, rows)
}

// ListRuns delegates to ListRunsWithClient with the shared client.
func (r *BigQueryRunRepository) ListRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	return ListRunsWithClient(ctx, r.client, r.dataset, limit)
}

var _ RunRepository = (*BigQueryRunRepository)(nil)
