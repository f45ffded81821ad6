package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/engine"
	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/metrics"
	"github.com/jacq-os/jacq/internal/store"
)

// Options configures a Server.
type Options struct {
	Owner   string // default owner when a request names none
	Version string
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Server is the jacq HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	owner   string
	version string
	log     *zap.Logger
	metrics *metrics.Metrics
	router  chi.Router
	started time.Time
}

// New creates a Server over the database and the engine built on it.
func New(db *store.DB, eng *engine.Engine, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	s := &Server{
		db:      db,
		engine:  eng,
		owner:   opts.Owner,
		version: opts.Version,
		log:     opts.Log,
		metrics: opts.Metrics,
		started: time.Now(),
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
	r.Use(middleware.RequestID)
	r.Use(s.observe)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/context", s.handleGetContext)
		r.Get("/route", s.handleRoute)

		r.Get("/entities", s.handleListEntities)
		r.Post("/entities", s.handleAddEntity)
		r.Post("/entities/{entityID}/mention", s.handleMentionEntity)

		r.Post("/facts", s.handleAddFact)
		r.Get("/facts/{factID}", s.handleGetFact)
		r.Post("/facts/{factID}/touch", s.handleTouchFact)
		r.Post("/facts/{factID}/promote", s.handlePromoteFact)
		r.Post("/facts/{factID}/retract", s.handleRetractFact)

		r.Post("/interactions", s.handleAddInteraction)
		r.Post("/maintenance", s.handleMaintenance)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router = r
}

// observe logs each request and counts it by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.HTTPRequest(r.Method, route, status)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db.PingContext(r.Context()) == nil

	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	}
	if v, err := s.db.SchemaVersion(); err == nil {
		body["schema_version"] = v
	}
	if counts, err := s.db.FactCounts(r.Context()); err == nil {
		body["facts"] = counts
	}
	if s.engine.Embedder != nil {
		body["embedder"] = s.engine.Embedder.Model()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	status := http.StatusInternalServerError

	var ve *memory.ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		body["problems"] = ve.Problems
	case errors.Is(err, memory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, memory.ErrInvalidTransition), errors.Is(err, memory.ErrConcurrentModification):
		status = http.StatusConflict
	default:
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
