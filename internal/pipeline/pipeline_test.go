package pipeline_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/ledger-reconciler/internal/advisor"
	bq "github.com/dvloznov/ledger-reconciler/internal/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/domain"
	"github.com/dvloznov/ledger-reconciler/internal/metrics"
	"github.com/dvloznov/ledger-reconciler/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStorage is an in-memory StorageService.
type mockStorage struct {
	mu        sync.Mutex
	files     map[string]string
	uploads   map[string][]byte
	FetchFunc func(ctx context.Context, name string) ([]byte, error)
}

func newMockStorage(files map[string]string) *mockStorage {
	return &mockStorage{files: files, uploads: map[string][]byte{}}
}

func (m *mockStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *mockStorage) Fetch(ctx context.Context, name string) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, name)
	}
	return []byte(m.files[name]), nil
}

func (m *mockStorage) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[name] = data
	return nil
}

func (m *mockStorage) URI(name string) string {
	return "mem://" + name
}

// mockRunRepo records the calls made by the runner.
type mockRunRepo struct {
	StartRunFunc      func(ctx context.Context, runID, profile string) error
	InsertRecordsFunc func(ctx context.Context, rows []*bq.RecordRow) error
	MarkSucceededFunc func(ctx context.Context, runID string, totals bq.RunTotals) error

	started   []string
	failed    map[string]error
	succeeded map[string]bq.RunTotals
	rows      []*bq.RecordRow
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{failed: map[string]error{}, succeeded: map[string]bq.RunTotals{}}
}

func (m *mockRunRepo) StartRun(ctx context.Context, runID, profile string) error {
	m.started = append(m.started, runID)
	if m.StartRunFunc != nil {
		return m.StartRunFunc(ctx, runID, profile)
	}
	return nil
}

func (m *mockRunRepo) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	m.failed[runID] = runErr
}

func (m *mockRunRepo) MarkRunSucceeded(ctx context.Context, runID string, totals bq.RunTotals) error {
	if m.MarkSucceededFunc != nil {
		return m.MarkSucceededFunc(ctx, runID, totals)
	}
	m.succeeded[runID] = totals
	return nil
}

func (m *mockRunRepo) InsertRecords(ctx context.Context, rows []*bq.RecordRow) error {
	if m.InsertRecordsFunc != nil {
		return m.InsertRecordsFunc(ctx, rows)
	}
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *mockRunRepo) ListRuns(ctx context.Context, limit int) ([]*bq.RunRow, error) {
	return nil, nil
}

// mockAdvisor returns canned suggestions.
type mockAdvisor struct {
	SuggestFunc func(ctx context.Context, a, b domain.RecordSet) ([]advisor.Suggestion, error)
}

func (m *mockAdvisor) Suggest(ctx context.Context, a, b domain.RecordSet) ([]advisor.Suggestion, error) {
	return m.SuggestFunc(ctx, a, b)
}

var expenseFiles = map[string]string{
	"expenses/jan.txt": strings.Join([]string{
		"05-Jan-2024", "Cab Fare to Airport", "Travel", "INR 100.00",
		"05-Jan-2024", "Cab Fare to Airport", "Travel", "INR 100.00",
		"06-Jan-2024", "Team Lunch", "Meals", "INR 250.00",
	}, "\n"),
	"statement/saving.txt": strings.Join([]string{
		"05-Jan-2024", "Cab Fare to Airport", "Travel", "payment", "100.00",
		"23-Jun-2025", "Refund to Merchant", "Charges", "refund", "-1000.00",
	}, "\n"),
	"statement/current.txt": "2025-06-21 Merchant Settlement INV-1 Credit 10.00 10.00",
}

func expensesProfile(t *testing.T) pipeline.Profile {
	t.Helper()
	p, err := pipeline.LookupProfile(pipeline.BuiltinProfiles(), pipeline.ProfileExpenses)
	require.NoError(t, err)
	return p
}

func TestRunner_Run(t *testing.T) {
	storage := newMockStorage(expenseFiles)
	repo := newMockRunRepo()
	r := &pipeline.Runner{Storage: storage, Repo: repo, Workers: 2, Publish: true}

	state, err := r.Run(context.Background(), "run-1", expensesProfile(t))

	require.NoError(t, err)
	require.NoError(t, state.Violation())
	require.Len(t, state.DocsB, 1, "current account statement must not be selected")

	s := state.Report.Summary
	assert.Equal(t, 1, s.Matched)
	assert.Equal(t, 1, s.UnmatchedA)
	assert.Equal(t, 0, s.UnmatchedB)
	assert.Equal(t, 1, s.Reimbursements)
	assert.Equal(t, 1, s.DuplicatesA)
	assert.Equal(t, 5, s.Input)

	assert.Contains(t, state.Report.Text, "Unmatched Expenses\n  • 250.00 on 2024-01-06 - Team Lunch")
	assert.Equal(t, []string{
		"mem://reconciliation/expenses/run-1/summary.txt",
		"mem://reconciliation/expenses/run-1/reconciliation.xlsx",
	}, state.ReportURIs)
	assert.Equal(t, state.Report.Text, string(storage.uploads["reconciliation/expenses/run-1/summary.txt"]))
	assert.NotEmpty(t, storage.uploads["reconciliation/expenses/run-1/reconciliation.xlsx"])

	assert.Equal(t, []string{"run-1"}, repo.started)
	assert.Len(t, repo.rows, 5)
	assert.Equal(t, int64(1), repo.succeeded["run-1"].Matched)
	assert.Empty(t, repo.failed)
}

func TestRunner_Run_FetchFailure(t *testing.T) {
	storage := newMockStorage(expenseFiles)
	storage.FetchFunc = func(ctx context.Context, name string) ([]byte, error) {
		return nil, errors.New("bucket unavailable")
	}
	repo := newMockRunRepo()
	r := &pipeline.Runner{Storage: storage, Repo: repo}

	_, err := r.Run(context.Background(), "run-2", expensesProfile(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step 1 failed")
	assert.Contains(t, err.Error(), "bucket unavailable")
	assert.Contains(t, repo.failed, "run-2")
	assert.Empty(t, repo.succeeded)
}

func TestRunner_Run_StartRunFailure(t *testing.T) {
	repo := newMockRunRepo()
	repo.StartRunFunc = func(ctx context.Context, runID, profile string) error {
		return errors.New("quota exceeded")
	}
	r := &pipeline.Runner{Storage: newMockStorage(expenseFiles), Repo: repo}

	_, err := r.Run(context.Background(), "", expensesProfile(t))

	require.Error(t, err)
	require.Len(t, repo.started, 1)
	assert.NotEmpty(t, repo.started[0], "a run id is generated")
}

func TestRunner_Run_RepoFailureCountsAsFailedRun(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(repo *mockRunRepo)
		wantErr string
	}{
		{
			name: "inserting records",
			setup: func(repo *mockRunRepo) {
				repo.InsertRecordsFunc = func(ctx context.Context, rows []*bq.RecordRow) error {
					return errors.New("streaming buffer full")
				}
			},
			wantErr: "streaming buffer full",
		},
		{
			name: "marking the run succeeded",
			setup: func(repo *mockRunRepo) {
				repo.MarkSucceededFunc = func(ctx context.Context, runID string, totals bq.RunTotals) error {
					return errors.New("concurrent update")
				}
			},
			wantErr: "concurrent update",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRunRepo()
			tt.setup(repo)
			collector := metrics.NewCollector("recon")
			r := &pipeline.Runner{Storage: newMockStorage(expenseFiles), Repo: repo, Metrics: collector}

			_, err := r.Run(context.Background(), "run-3", expensesProfile(t))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, repo.failed, "run-3")
			assert.Empty(t, repo.succeeded)

			expected := `
# HELP recon_runs_total Total number of reconciliation runs per profile and outcome
# TYPE recon_runs_total counter
recon_runs_total{profile="expenses",status="failed"} 1
`
			assert.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected), "recon_runs_total"))
		})
	}
}

func TestRunner_Run_NoStorage(t *testing.T) {
	_, err := (&pipeline.Runner{}).Run(context.Background(), "", expensesProfile(t))
	assert.Error(t, err)
}

func TestRunner_RunDocuments_Invoice(t *testing.T) {
	p, err := pipeline.LookupProfile(pipeline.BuiltinProfiles(), pipeline.ProfileInvoices)
	require.NoError(t, err)
	docsA := []pipeline.Document{{
		SourceID: "invoices/inv.pdf",
		Kind:     domain.KindInvoice,
		Lines: []string{
			"Invoice Number: INV-20250620-996A7766",
			"Invoice Date: June 20, 2025",
			"TOTAL: $27,033.29",
		},
	}}
	docsB := []pipeline.Document{{
		SourceID: "statement/current.txt",
		Kind:     domain.KindLedger,
		Lines:    []string{"2025-06-21 Merchant Settlement INV-20250620-996A7766 Credit 27,033.29 127,033.29"},
	}}

	state, err := (&pipeline.Runner{}).RunDocuments(context.Background(), "", p, docsA, docsB)

	require.NoError(t, err)
	assert.NotEmpty(t, state.RunID)
	assert.Empty(t, state.Result.Matched)
	assert.Len(t, state.Result.UnmatchedA, 1)
	assert.Len(t, state.Result.UnmatchedB, 1)
	assert.Empty(t, state.ReportURIs)

	p.DateToleranceDays = 1
	state, err = (&pipeline.Runner{}).RunDocuments(context.Background(), "", p, docsA, docsB)
	require.NoError(t, err)
	assert.Len(t, state.Result.Matched, 1)
}

func TestRunner_AdvisorIsAdvisory(t *testing.T) {
	p := expensesProfile(t)

	failing := &mockAdvisor{SuggestFunc: func(ctx context.Context, a, b domain.RecordSet) ([]advisor.Suggestion, error) {
		return nil, errors.New("model unavailable")
	}}
	state, err := (&pipeline.Runner{Storage: newMockStorage(expenseFiles), Advisor: failing}).Run(context.Background(), "", p)
	require.NoError(t, err)
	assert.Empty(t, state.Advisory)

	var seenA int
	helpful := &mockAdvisor{SuggestFunc: func(ctx context.Context, a, b domain.RecordSet) ([]advisor.Suggestion, error) {
		seenA = len(a)
		return []advisor.Suggestion{{Reason: "similar amount"}}, nil
	}}
	state, err = (&pipeline.Runner{Storage: newMockStorage(expenseFiles), Advisor: helpful}).Run(context.Background(), "", p)
	require.NoError(t, err)
	assert.Equal(t, 1, seenA)
	assert.Len(t, state.Advisory, 1)
	assert.Equal(t, 1, state.Report.Summary.UnmatchedA)
}

func TestRunner_InvalidProfile(t *testing.T) {
	p := expensesProfile(t)
	p.KeyPattern = "("

	_, err := (&pipeline.Runner{}).RunDocuments(context.Background(), "", p, nil, nil)

	assert.ErrorContains(t, err, "key_pattern")
}

type stepFunc func(ctx context.Context, state *pipeline.PipelineState) error

func (f stepFunc) Execute(ctx context.Context, state *pipeline.PipelineState) error {
	return f(ctx, state)
}

func TestPipeline_Execute(t *testing.T) {
	var order []int
	step := func(n int, err error) pipeline.PipelineStep {
		return stepFunc(func(ctx context.Context, state *pipeline.PipelineState) error {
			order = append(order, n)
			return err
		})
	}

	err := pipeline.NewPipeline(step(1, nil), step(2, errors.New("boom")), step(3, nil)).
		Execute(context.Background(), &pipeline.PipelineState{})

	assert.EqualError(t, err, "pipeline step 2 failed: boom")
	assert.Equal(t, []int{1, 2}, order)
}

func TestPipeline_Execute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	first := stepFunc(func(ctx context.Context, state *pipeline.PipelineState) error {
		cancel()
		return nil
	})
	second := stepFunc(func(ctx context.Context, state *pipeline.PipelineState) error {
		ran = true
		return nil
	})

	err := pipeline.NewPipeline(first, second).Execute(ctx, &pipeline.PipelineState{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestExtractDocuments_KeepsDocumentOrder(t *testing.T) {
	var docs []pipeline.Document
	for _, day := range []string{"01", "02", "03", "04", "05", "06"} {
		docs = append(docs, pipeline.Document{
			SourceID: "expenses/" + day + ".txt",
			Kind:     domain.KindExpense,
			Lines:    []string{day + "-Jan-2024", "Taxi", "Travel", "INR 10.00"},
		})
	}

	set, err := pipeline.ExtractDocuments(context.Background(), docs, 3)

	require.NoError(t, err)
	require.Len(t, set, 6)
	for i, r := range set {
		assert.Equal(t, docs[i].SourceID, r.SourceID)
	}
}

func TestExtractDocuments_SubstringKeywords(t *testing.T) {
	lines := []string{"01-Feb-2025", "Bakery", "Category: Meals", "Type: Debit", "4.50"}

	tests := []struct {
		name      string
		substring bool
		wantLen   int
		wantCat   string
	}{
		{name: "exact keywords", substring: false, wantLen: 0},
		{name: "keywords within a line", substring: true, wantLen: 1, wantCat: "Meals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side := pipeline.Side{Kind: domain.KindStatement, SubstringKeywords: tt.substring}

			set, err := pipeline.ExtractDocuments(context.Background(), []pipeline.Document{side.Document("statement/joint.txt", lines)}, 1)

			require.NoError(t, err)
			complete, _ := set.Split()
			require.Len(t, complete, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantCat, complete[0].Category)
				assert.Equal(t, domain.TypeDebit, complete[0].Type)
			}
		})
	}
}

func TestExtractDocuments_UnknownKind(t *testing.T) {
	_, err := pipeline.ExtractDocuments(context.Background(), []pipeline.Document{{SourceID: "x", Kind: "payslip"}}, 1)
	assert.ErrorContains(t, err, "payslip")
}

func TestSide_Selects(t *testing.T) {
	side := pipeline.Side{Prefix: "statement/", Contains: "saving"}

	assert.True(t, side.Selects("statement/Saving-2024.pdf"))
	assert.False(t, side.Selects("statement/current.pdf"))
	assert.False(t, side.Selects("expenses/saving.txt"))
	assert.False(t, side.Selects("statement/saving/"))
	assert.True(t, pipeline.Side{Prefix: "expenses/"}.Selects("expenses/a.txt"))
}

func TestLookupProfile_Unknown(t *testing.T) {
	_, err := pipeline.LookupProfile(pipeline.BuiltinProfiles(), "payroll")
	assert.EqualError(t, err, `unknown profile "payroll" (available: expenses, invoices)`)
}

func TestProfile_Validate(t *testing.T) {
	p := expensesProfile(t)
	require.NoError(t, p.Validate())

	bad := p
	bad.B.Kind = "receipt"
	assert.ErrorContains(t, bad.Validate(), "unknown kind")

	bad = p
	bad.DateToleranceDays = -1
	assert.Error(t, bad.Validate())

	bad = p
	bad.Name = ""
	assert.Error(t, bad.Validate())
}
