package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/engine"
)

// Server is the constellation HTTP API server.
type Server struct {
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
	log     *zap.Logger
}

// New creates a Server over eng.
func New(eng *engine.Engine, version string) *Server {
	s := &Server{
		engine:  eng,
		version: version,
		started: time.Now(),
		log:     eng.Logger().Named("http"),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// graph
		r.Get("/graph", s.handleGraph)
		r.Get("/nodes/{id}", s.handleNode)
		r.Get("/edges/{key}", s.handleEdge)
		r.Get("/search", s.handleSearch)
		r.Get("/related/{id}", s.handleRelated)
		r.Get("/metadata", s.handleMetadata)

		// user model
		r.Get("/model", s.handleModel)
		r.Get("/context", s.handleContext)
		r.Get("/people", s.handlePeople)
		r.Get("/projects", s.handleProjects)
		r.Get("/expertise", s.handleExpertise)
		r.Get("/blocks", s.handleBlocks)
		r.Get("/importance", s.handleImportance)

		// raw feed
		r.Get("/timeline", s.handleTimeline)
		r.Get("/summary", s.handleSummary)

		r.Post("/activity", s.handleActivity)
		r.Post("/maintenance", s.handleMaintenance)
		r.Delete("/data", s.handleReset)
	})
	r.Handle("/metrics", s.engine.Metrics().Handler())

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	nodes, edges := s.engine.Store().Len()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"nodes":   nodes,
		"edges":   edges,
		"assist":  s.engine.AssistEnabled(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
