package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claude/fitmerge/internal/audit"
	"github.com/claude/fitmerge/internal/ingest/healthconnect"
	"github.com/claude/fitmerge/internal/ingest/healthkit"
	"github.com/claude/fitmerge/internal/reconcile"
	"github.com/claude/fitmerge/internal/records"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	records       *records.Service
	pipeline      *reconcile.Pipeline
	audit         *audit.Manager
	healthkit     *healthkit.Provider
	healthconnect *healthconnect.Provider
	log           *slog.Logger
	apiKey        string
	router        chi.Router
}

// New creates a new Server with all routes configured.
func New(recordSvc *records.Service, pipeline *reconcile.Pipeline, auditMgr *audit.Manager,
	hk *healthkit.Provider, hc *healthconnect.Provider, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		records:       recordSvc,
		pipeline:      pipeline,
		audit:         auditMgr,
		healthkit:     hk,
		healthconnect: hc,
		log:           log,
		apiKey:        apiKey,
		router:        chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Ingest endpoints (API key required)
	s.router.Route("/api/v1/ingest", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/healthkit", s.handleHealthKitIngest)
		r.Post("/healthconnect", s.handleHealthConnectIngest)
	})

	// Record and reconciliation endpoints ride on tsnet for access control.
	s.router.Get("/api/v1/records", s.handleListRecords)
	s.router.Post("/api/v1/records", s.handleCreateRecord)
	s.router.Get("/api/v1/records/{id}", s.handleGetRecord)
	s.router.Patch("/api/v1/records/{id}", s.handleUpdateRecord)
	s.router.Delete("/api/v1/records/{id}", s.handleDeleteRecord)

	s.router.Get("/api/v1/conflicts", s.handleListConflicts)
	s.router.Post("/api/v1/conflicts/{id}/resolve", s.handleResolveConflict)

	s.router.Get("/api/v1/audit", s.handleAuditTrail)
	s.router.Get("/api/v1/audit/stats", s.handleAuditStats)
	s.router.Get("/api/v1/audit/undoable", s.handleUndoableOperations)
	s.router.Post("/api/v1/audit/{id}/undo", s.handleUndo)

	s.router.Handle("/metrics", promhttp.Handler())
}
