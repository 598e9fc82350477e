// Package api exposes the comparison orchestrators over HTTP for the browser
// presentation layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/compare"
	"github.com/clarioo/compare-cli/pkg/notion"
)

// LeadSink records landing-page leads.
type LeadSink interface {
	Capture(ctx context.Context, lead notion.Lead) (created bool, err error)
}

// NotionLeads stores leads in a Notion database.
type NotionLeads struct {
	Client notion.Client
}

// Capture implements LeadSink.
func (n NotionLeads) Capture(ctx context.Context, lead notion.Lead) (bool, error) {
	_, created, err := notion.CaptureLead(ctx, n.Client, lead, time.Now().UTC())
	return created, err
}

// Server routes HTTP requests to the project orchestrators.
type Server struct {
	manager *compare.Manager
	leads   LeadSink
	origins []string
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLeads enables POST /api/leads.
func WithLeads(sink LeadSink) Option {
	return func(s *Server) { s.leads = sink }
}

// WithAllowedOrigins sets the CORS origins. Defaults to "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithClock overrides the time source used for export timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server.
func New(m *compare.Manager, opts ...Option) *Server {
	s := &Server{
		manager: m,
		origins: []string{"*"},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/leads", s.handleLead)
		r.Get("/projects", s.handleListProjects)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Put("/", s.handlePutProject)
			r.Get("/", s.handleGetProject)

			r.Route("/comparison", func(r chi.Router) {
				r.Get("/", s.handleState)
				r.Post("/start", s.handleStart)
				r.Post("/resume", s.handleStart)
				r.Post("/pause", s.handlePause)
				r.Post("/reset", s.handleReset)
				r.Post("/criteria/{criterionID}/retry", s.handleRetryRow)
				r.Post("/criteria/{criterionID}/vendors/{vendorID}/retry", s.handleRetryCell)
				r.Get("/export.json", s.handleExportJSON)
				r.Get("/export.xlsx", s.handleExportXLSX)
			})
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
