package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/extract"
	"github.com/dvloznov/ledger-reconciler/internal/gcsuploader"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
	"github.com/dvloznov/ledger-reconciler/internal/normalize"
	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
	"github.com/dvloznov/ledger-reconciler/internal/report"
	"github.com/dvloznov/ledger-reconciler/internal/textextract"
	"golang.org/x/sync/errgroup"
)

// LoadDocumentsStep lists the documents of both sides and reads their text.
type LoadDocumentsStep struct {
	Storage StorageService
	Workers int
}

func (s *LoadDocumentsStep) Execute(ctx context.Context, state *PipelineState) error {
	docsA, err := s.loadSide(ctx, state.Profile.A)
	if err != nil {
		return fmt.Errorf("LoadDocumentsStep: side A: %w", err)
	}
	docsB, err := s.loadSide(ctx, state.Profile.B)
	if err != nil {
		return fmt.Errorf("LoadDocumentsStep: side B: %w", err)
	}
	state.DocsA = docsA
	state.DocsB = docsB

	log := logger.FromContext(ctx)
	log.Info().
		Int("documents_a", len(docsA)).
		Int("documents_b", len(docsB)).
		Msg("Loaded source documents")
	return nil
}

func (s *LoadDocumentsStep) loadSide(ctx context.Context, side Side) ([]Document, error) {
	names, err := s.Storage.List(ctx, side.Prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", side.Prefix, err)
	}
	var selected []string
	for _, name := range names {
		if side.Selects(name) {
			selected = append(selected, name)
		}
	}
	sort.Strings(selected)

	docs := make([]Document, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(s.Workers))
	for i, name := range selected {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := s.Storage.Fetch(gctx, name)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", name, err)
			}
			lines, err := textextract.Lines(name, data)
			if err != nil {
				return fmt.Errorf("reading %s: %w", name, err)
			}
			docs[i] = side.Document(name, lines)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// ExtractStep turns the documents of both sides into record sets.
// Documents are processed in parallel; output order follows document order.
type ExtractStep struct {
	Workers int
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	setA, err := ExtractDocuments(ctx, state.DocsA, s.Workers)
	if err != nil {
		return fmt.Errorf("ExtractStep: side A: %w", err)
	}
	setB, err := ExtractDocuments(ctx, state.DocsB, s.Workers)
	if err != nil {
		return fmt.Errorf("ExtractStep: side B: %w", err)
	}
	state.SetA = setA
	state.SetB = setB
	return nil
}

// ExtractDocuments accumulates and normalizes each document and concatenates
// the records in document order.
func ExtractDocuments(ctx context.Context, docs []Document, n int) (domain.RecordSet, error) {
	log := logger.FromContext(ctx)
	perDoc := make([]domain.RecordSet, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(n))
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			grammar, err := extract.ForKind(doc.Kind)
			if err != nil {
				return fmt.Errorf("%s: %w", doc.SourceID, err)
			}
			grammar.SubstringKeywords = doc.SubstringKeywords
			res := extract.Accumulate(doc.SourceID, doc.Lines, grammar)
			perDoc[i] = normalize.Records(res.Candidates)

			log.Debug().
				Str("source_id", doc.SourceID).
				Int("records", len(perDoc[i])).
				Bool("complete", res.HadAnyComplete).
				Msg("Extracted document")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out domain.RecordSet
	for _, set := range perDoc {
		out = append(out, set...)
	}
	return out, nil
}

// ReconcileStep runs deduplication, matching and classification.
type ReconcileStep struct{}

func (s *ReconcileStep) Execute(ctx context.Context, state *PipelineState) error {
	cfg, err := state.Profile.MatchConfig()
	if err != nil {
		return fmt.Errorf("ReconcileStep: %w", err)
	}
	state.Result = reconcile.Reconcile(state.SetA, state.SetB, reconcile.NewMatcher(cfg))

	if state.Result.InsufficientData {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("notice", state.Result.Notice).
			Msg("Reconciling with insufficient data")
	}
	return nil
}

// ReportStep renders the text report and the workbook.
type ReportStep struct{}

func (s *ReportStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Report = report.Build(state.Result, state.Profile.labels())
	if v := state.Report.Violation; v != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(v).
			Int("input", v.Input).
			Int("bucketed", v.Bucketed).
			Msg("Reconciliation lost or duplicated records")
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, state.Result); err != nil {
		return fmt.Errorf("ReportStep: %w", err)
	}
	state.Workbook = buf.Bytes()
	return nil
}

// AdviseStep asks the advisor about unmatched records. Advisor errors are
// logged and do not fail the run.
type AdviseStep struct {
	Advisor Advisor
}

func (s *AdviseStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Advisor == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	suggestions, err := s.Advisor.Suggest(ctx, state.Result.UnmatchedA, state.Result.UnmatchedB)
	if err != nil {
		log.Warn().Err(err).Msg("Advisor failed, continuing without suggestions")
		return nil
	}
	state.Advisory = suggestions
	log.Info().Int("suggestions", len(suggestions)).Msg("Advisor finished")
	return nil
}

// PublishStep uploads the text report and the workbook.
type PublishStep struct {
	Storage StorageService
}

func (s *PublishStep) Execute(ctx context.Context, state *PipelineState) error {
	dir := path.Join(ReportPrefix, state.Profile.Name, state.RunID)
	outputs := []struct {
		name string
		data []byte
	}{
		{SummaryObject, []byte(state.Report.Text)},
		{WorkbookObject, state.Workbook},
	}
	for _, o := range outputs {
		object := path.Join(dir, o.name)
		if err := s.Storage.Upload(ctx, object, o.data, gcsuploader.ContentTypeFor(o.name)); err != nil {
			return fmt.Errorf("PublishStep: uploading %s: %w", object, err)
		}
		state.ReportURIs = append(state.ReportURIs, s.Storage.URI(object))
	}
	log := logger.FromContext(ctx)
	log.Info().
		Strs("uris", state.ReportURIs).
		Msg("Published reconciliation report")
	return nil
}

func workers(n int) int {
	if n <= 0 {
		return DefaultWorkers
	}
	return n
}
