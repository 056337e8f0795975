package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/ledger-reconciler/internal/api/middleware"
)

// Router holds the handlers served by the API. Nil handlers leave their
// routes unregistered.
type Router struct {
	Reconcile *ReconcileHandler
	Documents *DocumentsHandler
	Jobs      *JobsHandler
	Runs      *RunsHandler
	Metrics   http.Handler
}

// Mux registers every configured route on a new ServeMux.
func (rt Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	if rt.Reconcile != nil {
		mux.HandleFunc("POST /api/reconcile", rt.Reconcile.Enqueue)
		mux.HandleFunc("POST /api/reconcile/inline", rt.Reconcile.Inline)
	}
	if rt.Documents != nil {
		mux.HandleFunc("POST /api/documents/upload", rt.Documents.Upload)
	}
	if rt.Jobs != nil {
		mux.HandleFunc("GET /api/jobs", rt.Jobs.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", rt.Jobs.GetJob)
	}
	if rt.Runs != nil {
		mux.HandleFunc("GET /api/runs", rt.Runs.ListRuns)
	}
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
