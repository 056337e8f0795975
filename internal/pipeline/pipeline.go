package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-reconciler/internal/advisor"
	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
	"github.com/dvloznov/ledger-reconciler/internal/report"
)

// Document is the text of one source document, split into lines, with the
// grammar options of its side.
type Document struct {
	SourceID          string            `json:"source_id"`
	Kind              domain.RecordKind `json:"kind"`
	Lines             []string          `json:"lines"`
	SubstringKeywords bool              `json:"substring_keywords,omitempty"`
}

// PipelineStep represents a single step in the reconciliation pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Profile Profile
	RunID   string

	DocsA []Document
	DocsB []Document

	SetA domain.RecordSet
	SetB domain.RecordSet

	Result   reconcile.Result
	Report   report.Report
	Workbook []byte

	// Advisory holds suggestions for unmatched records. It never changes Result.
	Advisory []advisor.Suggestion

	ReportURIs []string
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially. Cancellation is
// checked between steps.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		log.Debug().
			Int("step", i+1).
			Str("step_type", fmt.Sprintf("%T", step)).
			Msg("Executing pipeline step")
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
