package pipeline

import (
	"context"
	"fmt"
	"time"

	bq "github.com/dvloznov/ledger-reconciler/internal/bigquery"
	infra "github.com/dvloznov/ledger-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
	"github.com/dvloznov/ledger-reconciler/internal/metrics"
	"github.com/google/uuid"
)

// Runner wires the pipeline steps to their dependencies. Repo, Advisor
// and Metrics are optional.
type Runner struct {
	Storage StorageService
	Repo    RunRepository
	Advisor Advisor
	Metrics *metrics.Collector
	Workers int
	// Publish uploads the outputs to Storage after a run.
	Publish bool
}

// Run reconciles the documents that profile selects from storage.
// An empty runID gets a fresh one.
func (r *Runner) Run(ctx context.Context, runID string, profile Profile) (*PipelineState, error) {
	if r.Storage == nil {
		return nil, fmt.Errorf("Run: no storage configured")
	}
	steps := []PipelineStep{
		&LoadDocumentsStep{Storage: r.Storage, Workers: r.Workers},
	}
	return r.execute(ctx, runID, profile, &PipelineState{}, steps)
}

// RunDocuments reconciles documents that are already in memory.
func (r *Runner) RunDocuments(ctx context.Context, runID string, profile Profile, docsA, docsB []Document) (*PipelineState, error) {
	return r.execute(ctx, runID, profile, &PipelineState{DocsA: docsA, DocsB: docsB}, nil)
}

func (r *Runner) execute(ctx context.Context, runID string, profile Profile, state *PipelineState, steps []PipelineStep) (*PipelineState, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	state.Profile = profile
	state.RunID = runID

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"run_id":  runID,
		"profile": profile.Name,
	})
	ctx = logger.WithContext(ctx, log)
	started := time.Now()

	if r.Repo != nil {
		if err := r.Repo.StartRun(ctx, runID, profile.Name); err != nil {
			r.Metrics.RecordRun(profile.Name, "failed", time.Since(started))
			return nil, fmt.Errorf("Run: starting run: %w", err)
		}
	}

	steps = append(steps,
		&ExtractStep{Workers: r.Workers},
		&ReconcileStep{},
		&ReportStep{},
		&AdviseStep{Advisor: r.Advisor},
	)
	if r.Publish && r.Storage != nil {
		steps = append(steps, &PublishStep{Storage: r.Storage})
	}

	if err := NewPipeline(steps...).Execute(ctx, state); err != nil {
		r.fail(ctx, runID, profile.Name, started, err)
		return state, err
	}

	if r.Repo != nil {
		if err := r.Repo.InsertRecords(ctx, infra.RecordRows(runID, state.Result)); err != nil {
			err = fmt.Errorf("Run: storing records: %w", err)
			r.fail(ctx, runID, profile.Name, started, err)
			return state, err
		}
		if err := r.Repo.MarkRunSucceeded(ctx, runID, runTotals(state)); err != nil {
			err = fmt.Errorf("Run: %w", err)
			r.fail(ctx, runID, profile.Name, started, err)
			return state, err
		}
	}

	s := state.Report.Summary
	r.Metrics.RecordRun(profile.Name, "success", time.Since(started))
	r.Metrics.RecordBuckets(s.Counts())
	if state.Report.Violation != nil {
		r.Metrics.RecordViolation(profile.Name)
	}

	log.Info().
		Int("matched", s.Matched).
		Int("unmatched_a", s.UnmatchedA).
		Int("unmatched_b", s.UnmatchedB).
		Int("reimbursements", s.Reimbursements).
		Int("parse_failures", s.ParseFailures).
		Dur("duration", time.Since(started)).
		Msg("Reconciliation finished")
	return state, nil
}

func (r *Runner) fail(ctx context.Context, runID, profile string, started time.Time, err error) {
	log := logger.FromContext(ctx)
	log.Error().Err(err).Msg("Reconciliation failed")
	if r.Repo != nil {
		r.Repo.MarkRunFailed(ctx, runID, err)
	}
	r.Metrics.RecordRun(profile, "failed", time.Since(started))
}

func runTotals(state *PipelineState) bq.RunTotals {
	s := state.Report.Summary
	t := bq.RunTotals{
		Matched:        int64(s.Matched),
		UnmatchedA:     int64(s.UnmatchedA),
		UnmatchedB:     int64(s.UnmatchedB),
		Reimbursements: int64(s.Reimbursements),
		DuplicatesA:    int64(s.DuplicatesA),
		DuplicatesB:    int64(s.DuplicatesB),
		ParseFailures:  int64(s.ParseFailures),
		Input:          int64(s.Input),
		Notice:         state.Result.Notice,
	}
	if v := state.Report.Violation; v != nil {
		t.Violation = v.Error()
	}
	return t
}

// Violation returns the consistency violation of a finished run, if any.
func (s *PipelineState) Violation() error {
	if s == nil || s.Report.Violation == nil {
		return nil
	}
	return s.Report.Violation
}
