package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgallion1/docgate/internal/archive"
	"github.com/dgallion1/docgate/internal/config"
	"github.com/dgallion1/docgate/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DocumentStore is the read side of the result archive.
type DocumentStore interface {
	Get(ctx context.Context, hash string) (*archive.Document, error)
	List(ctx context.Context, limit, offset int) ([]archive.Document, error)
	Count(ctx context.Context) (int, error)
}

// Server is the HTTP API server for docgate.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	docs         DocumentStore
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. docs may be nil when
// the archive is disabled.
func NewServer(orch *pipeline.Orchestrator, docs DocumentStore, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		docs:         docs,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.DocgateAPIKey, s.log))

		r.Post("/api/parse", s.handleParse)

		r.Post("/api/jobs", s.handleSubmitJob)
		r.Post("/api/jobs/batch", s.handleSubmitBatch)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{hash}", s.handleGetDocument)

		r.Get("/api/ruleset", s.handleRuleset)
		r.Get("/api/stats/parse", s.handleParseStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
