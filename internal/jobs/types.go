package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-reconciler/internal/report"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries is used when a job is published without MaxRetries.
const DefaultMaxRetries = 3

// ReconcileJob represents one reconciliation run of a profile against storage.
type ReconcileJob struct {
	JobID string `json:"job_id"`

	// Profile is the name of the profile to run.
	Profile string `json:"profile"`

	// RunID identifies the run in storage paths and run history.
	// It is kept across retries.
	RunID string `json:"run_id"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the last attempt failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// Result is set when the job completes.
	Result *JobResult `json:"result,omitempty"`
}

// JobResult is what a completed job reports back.
type JobResult struct {
	Summary    report.Summary `json:"summary"`
	ReportURIs []string       `json:"report_uris,omitempty"`
	Notice     string         `json:"notice,omitempty"`
	Violation  string         `json:"violation,omitempty"`
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory, Cloud Tasks, Pub/Sub).
type Publisher interface {
	// PublishReconcile publishes a reconciliation job.
	PublishReconcile(ctx context.Context, job *ReconcileJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It may set job.Result and should return an
// error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job *ReconcileJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ReconcileJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ReconcileJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ReconcileJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Profile string
	Status  JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// ErrJobNotFound is returned by JobStore.GetJob for an unknown ID.
var ErrJobNotFound = errors.New("job not found")
