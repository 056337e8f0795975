package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-reconciler/internal/jobs"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
)

// JobHandler returns a handler that runs queued reconciliation jobs
// against storage and records their result on the job.
func (r *Runner) JobHandler(profiles map[string]Profile) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.ReconcileJob) error {
		profile, err := LookupProfile(profiles, job.Profile)
		if err != nil {
			return fmt.Errorf("JobHandler: %w", err)
		}

		log := logger.FromContext(ctx)
		log.Info().
			Str("job_id", job.JobID).
			Str("run_id", job.RunID).
			Str("profile", job.Profile).
			Msg("Processing reconciliation job")

		state, err := r.Run(ctx, job.RunID, profile)
		if err != nil {
			return err
		}

		job.Result = &jobs.JobResult{
			Summary:    state.Report.Summary,
			ReportURIs: state.ReportURIs,
			Notice:     state.Result.Notice,
		}
		if v := state.Violation(); v != nil {
			job.Result.Violation = v.Error()
		}
		return nil
	}
}
