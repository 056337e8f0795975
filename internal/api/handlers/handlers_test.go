package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	bq "github.com/dvloznov/ledger-reconciler/internal/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/jobs"
	"github.com/dvloznov/ledger-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-reconciler/internal/localfs"
	"github.com/dvloznov/ledger-reconciler/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.ReconcileJob) error
	published   []*jobs.ReconcileJob
}

func (m *mockPublisher) PublishReconcile(ctx context.Context, job *jobs.ReconcileJob) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, job)
	}
	job.JobID = "job-1"
	job.RunID = "run-1"
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type mockRunRepo struct {
	bq.RunRepository
	ListRunsFunc func(ctx context.Context, limit int) ([]*bq.RunRow, error)
}

func (m *mockRunRepo) ListRuns(ctx context.Context, limit int) ([]*bq.RunRow, error) {
	return m.ListRunsFunc(ctx, limit)
}

func serve(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, bytes.NewReader(body)))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestEnqueue(t *testing.T) {
	pub := &mockPublisher{}
	mux := Router{Reconcile: NewReconcileHandler(pipeline.BuiltinProfiles(), pub, &pipeline.Runner{})}.Mux()

	rec := serve(t, mux, http.MethodPost, "/api/reconcile", []byte(`{"profile":"invoices"}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "run-1", body["run_id"])
	require.Len(t, pub.published, 1)
	assert.Equal(t, "invoices", pub.published[0].Profile)
}

func TestEnqueue_Errors(t *testing.T) {
	failing := &mockPublisher{PublishFunc: func(ctx context.Context, job *jobs.ReconcileJob) error {
		return errors.New("queue is closed")
	}}
	mux := Router{Reconcile: NewReconcileHandler(pipeline.BuiltinProfiles(), failing, &pipeline.Runner{})}.Mux()

	assert.Equal(t, http.StatusBadRequest, serve(t, mux, http.MethodPost, "/api/reconcile", []byte(`{`)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, mux, http.MethodPost, "/api/reconcile", []byte(`{"profile":"payroll"}`)).Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, mux, http.MethodPost, "/api/reconcile", []byte(`{"profile":"expenses"}`)).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, mux, http.MethodGet, "/api/reconcile", nil).Code)
}

func TestInline(t *testing.T) {
	mux := Router{Reconcile: NewReconcileHandler(pipeline.BuiltinProfiles(), &mockPublisher{}, &pipeline.Runner{})}.Mux()
	body := []byte(`{
		"profile": "expenses",
		"a": [{"source_id": "expenses/jan.txt", "text": "01-Dec-2024\nCab Fare to Airport\nTravel\nINR 100.00\n01-Dec-2024\nCab Fare to Airport\nTravel\nINR 100.00"}],
		"b": [{"lines": ["01-Dec-2024", "Cab Fare to Airport", "Travel", "payment", "100.00"]}]
	}`)

	rec := serve(t, mux, http.MethodPost, "/api/reconcile/inline", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp InlineResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 1, resp.Summary.Matched)
	assert.Equal(t, 1, resp.Summary.DuplicatesA)
	assert.Empty(t, resp.Violation)
	require.Len(t, resp.Result.Matched, 1)
	assert.Equal(t, "statement/inline-1", resp.Result.Matched[0].B.SourceID)
	assert.Contains(t, resp.Text, "Duplicate Expenses")
}

func TestInline_EmptySideReportsNotice(t *testing.T) {
	mux := Router{Reconcile: NewReconcileHandler(pipeline.BuiltinProfiles(), &mockPublisher{}, &pipeline.Runner{})}.Mux()

	rec := serve(t, mux, http.MethodPost, "/api/reconcile/inline", []byte(`{"profile":"expenses","a":[{"text":"05-Jan-2024\nTaxi\nTravel\nINR 12.00"}]}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp InlineResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Result.InsufficientData)
	assert.Equal(t, 1, resp.Summary.UnmatchedA)
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	mux := Router{Documents: NewDocumentsHandler(localfs.NewStore(dir))}.Mux()

	rec := serve(t, mux, http.MethodPost, "/api/documents/upload?name=expenses/jan.txt", []byte("05-Jan-2024\nTaxi"))

	require.Equal(t, http.StatusCreated, rec.Code)
	data, err := os.ReadFile(filepath.Join(dir, "expenses", "jan.txt"))
	require.NoError(t, err)
	assert.Equal(t, "05-Jan-2024\nTaxi", string(data))

	for _, name := range []string{"", "/etc/passwd", "../x.txt", "expenses/"} {
		rec := serve(t, mux, http.MethodPost, "/api/documents/upload?name="+name, []byte("x"))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestJobs(t *testing.T) {
	store := inmemory.NewStore()
	require.NoError(t, store.SaveJob(context.Background(), &jobs.ReconcileJob{JobID: "j1", Profile: "expenses", Status: jobs.JobStatusCompleted}))
	require.NoError(t, store.SaveJob(context.Background(), &jobs.ReconcileJob{JobID: "j2", Profile: "invoices", Status: jobs.JobStatusFailed}))
	mux := Router{Jobs: NewJobsHandler(store)}.Mux()

	rec := serve(t, mux, http.MethodGet, "/api/jobs/j1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobs.ReconcileJob
	decode(t, rec, &job)
	assert.Equal(t, "expenses", job.Profile)

	assert.Equal(t, http.StatusNotFound, serve(t, mux, http.MethodGet, "/api/jobs/nope", nil).Code)

	rec = serve(t, mux, http.MethodGet, "/api/jobs?profile=invoices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs  []jobs.ReconcileJob `json:"jobs"`
		Count int                 `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "j2", list.Jobs[0].JobID)
}

func TestListRuns(t *testing.T) {
	var gotLimit int
	repo := &mockRunRepo{ListRunsFunc: func(ctx context.Context, limit int) ([]*bq.RunRow, error) {
		gotLimit = limit
		return []*bq.RunRow{{RunID: "r1", Profile: "expenses", Status: bq.RunStatusSuccess}}, nil
	}}
	mux := Router{Runs: NewRunsHandler(repo)}.Mux()

	rec := serve(t, mux, http.MethodGet, "/api/runs?limit=5", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, gotLimit)
	assert.Contains(t, rec.Body.String(), `"RunID":"r1"`)

	repo.ListRunsFunc = func(ctx context.Context, limit int) ([]*bq.RunRow, error) {
		return nil, errors.New("bigquery down")
	}
	assert.Equal(t, http.StatusInternalServerError, serve(t, mux, http.MethodGet, "/api/runs", nil).Code)
}

func TestHealth(t *testing.T) {
	rec := serve(t, Router{}.Mux(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
