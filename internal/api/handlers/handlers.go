package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/dvloznov/ledger-reconciler/internal/advisor"
	"github.com/dvloznov/ledger-reconciler/internal/api/middleware"
	bq "github.com/dvloznov/ledger-reconciler/internal/bigquery"
	"github.com/dvloznov/ledger-reconciler/internal/gcs"
	"github.com/dvloznov/ledger-reconciler/internal/gcsuploader"
	"github.com/dvloznov/ledger-reconciler/internal/jobs"
	"github.com/dvloznov/ledger-reconciler/internal/logger"
	"github.com/dvloznov/ledger-reconciler/internal/pipeline"
	"github.com/dvloznov/ledger-reconciler/internal/reconcile"
	"github.com/dvloznov/ledger-reconciler/internal/report"
	"github.com/dvloznov/ledger-reconciler/internal/textextract"
)

// MaxUploadBytes limits the size of an uploaded document.
const MaxUploadBytes = 20 << 20

// ReconcileHandler handles reconciliation endpoints.
type ReconcileHandler struct {
	profiles  map[string]pipeline.Profile
	publisher jobs.Publisher
	runner    *pipeline.Runner
}

// NewReconcileHandler creates a new reconcile handler. runner serves the
// inline endpoint and must not publish.
func NewReconcileHandler(profiles map[string]pipeline.Profile, publisher jobs.Publisher, runner *pipeline.Runner) *ReconcileHandler {
	return &ReconcileHandler{
		profiles:  profiles,
		publisher: publisher,
		runner:    runner,
	}
}

// Enqueue handles POST /api/reconcile
func (h *ReconcileHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile string `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := pipeline.LookupProfile(h.profiles, req.Profile); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx)

	job := &jobs.ReconcileJob{Profile: req.Profile}
	if err := h.publisher.PublishReconcile(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue reconciliation job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue reconciliation job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("run_id", job.RunID).Str("profile", job.Profile).Msg("Reconciliation job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"run_id": job.RunID,
		"status": string(job.Status),
	})
}

// inlineDocument is a posted document. Text is split into lines when Lines is empty.
type inlineDocument struct {
	SourceID string   `json:"source_id"`
	Text     string   `json:"text,omitempty"`
	Lines    []string `json:"lines,omitempty"`
}

// InlineResponse is the body of a successful inline reconciliation.
type InlineResponse struct {
	RunID     string               `json:"run_id"`
	Summary   report.Summary       `json:"summary"`
	Result    reconcile.Result     `json:"result"`
	Text      string               `json:"text"`
	Advisory  []advisor.Suggestion `json:"advisory,omitempty"`
	Violation string               `json:"violation,omitempty"`
}

// Inline handles POST /api/reconcile/inline
func (h *ReconcileHandler) Inline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile string           `json:"profile"`
		A       []inlineDocument `json:"a"`
		B       []inlineDocument `json:"b"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxUploadBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	profile, err := pipeline.LookupProfile(h.profiles, req.Profile)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	state, err := h.runner.RunDocuments(ctx, "", profile,
		toDocuments(req.A, profile.A), toDocuments(req.B, profile.B))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Inline reconciliation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Reconciliation failed")
		return
	}

	resp := InlineResponse{
		RunID:    state.RunID,
		Summary:  state.Report.Summary,
		Result:   state.Result,
		Text:     state.Report.Text,
		Advisory: state.Advisory,
	}
	if err := state.Violation(); err != nil {
		resp.Violation = err.Error()
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func toDocuments(in []inlineDocument, side pipeline.Side) []pipeline.Document {
	docs := make([]pipeline.Document, 0, len(in))
	for i, d := range in {
		lines := d.Lines
		if len(lines) == 0 {
			lines = textextract.SplitLines(d.Text)
		}
		id := d.SourceID
		if id == "" {
			id = side.Prefix + "inline-" + strconv.Itoa(i+1)
		}
		docs = append(docs, side.Document(id, lines))
	}
	return docs
}

// DocumentsHandler handles document upload.
type DocumentsHandler struct {
	storage gcs.StorageService
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(storage gcs.StorageService) *DocumentsHandler {
	return &DocumentsHandler{storage: storage}
}

// Upload handles POST /api/documents/upload?name=expenses/jan.pdf
// The request body is the raw file.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	name, ok := cleanObjectName(r.URL.Query().Get("name"))
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "name must be a relative object path such as expenses/jan.pdf")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = gcsuploader.ContentTypeFor(name)
	}

	ctx := r.Context()
	log := logger.FromContext(ctx)
	if err := h.storage.Upload(ctx, name, data, contentType); err != nil {
		log.Error().Err(err).Str("object", name).Msg("Failed to upload document")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}

	uri := h.storage.URI(name)
	log.Info().
		Str("uri", uri).
		Int("bytes", len(data)).
		Msg("File uploaded successfully")

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"object": name,
		"uri":    uri,
		"bytes":  len(data),
	})
}

// cleanObjectName rejects absolute paths, parent references and directories.
func cleanObjectName(name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return "", false
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Profile: query.Get("profile"),
		Status:  jobs.JobStatus(query.Get("status")),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// RunsHandler serves run history.
type RunsHandler struct {
	repo bq.RunRepository
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo bq.RunRepository) *RunsHandler {
	return &RunsHandler{repo: repo}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.repo.ListRuns(ctx, limit)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*bq.RunRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
