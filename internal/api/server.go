// Package api exposes the HTTP interface of the generation service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/config"
	"github.com/JakeFAU/conductio-api/internal/library"
	"github.com/JakeFAU/conductio-api/internal/metrics"
	"github.com/JakeFAU/conductio-api/internal/output"
	"github.com/JakeFAU/conductio-api/internal/policy/ratelimit"
)

// Version is reported by the health and info routes.
const Version = "1.0.0"

// Enqueuer accepts async jobs for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item conductio.QueueItem) error
}

// Deps collects the collaborators of the HTTP layer.
type Deps struct {
	Generator  conductio.SlotGenerator
	Prober     conductio.Prober
	Catalog    conductio.Catalog
	JobStore   conductio.JobStore
	Dispatcher Enqueuer
	Resolver   *output.Resolver
	Library    *library.Scanner
	IDGen      conductio.IDGenerator
	Clock      conductio.Clock
	// Fs is the filesystem files are streamed from; nil means the OS filesystem.
	Fs afero.Fs
}

// Server wires HTTP handlers to the engine, job registry and library.
type Server struct {
	router  chi.Router
	deps    Deps
	cfg     config.Config
	started time.Time
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:    deps,
		cfg:     cfg,
		started: deps.Clock.Now(),
		logger:  logger,
	}

	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Server.RateLimitRPS, Burst: cfg.Server.RateLimitBurst})

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger, cfg.Server.Development))
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Generation-Info", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)
	r.NotFound(routeNotFound)
	r.MethodNotAllowed(routeNotFound)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/health", func(r chi.Router) {
			r.Get("/", s.health)
			r.Get("/info", s.info)
		})
		r.Route("/generate", func(r chi.Router) {
			r.Use(generationDeadline(cfg.GenerationTimeout()))
			r.Group(func(r chi.Router) {
				if limiter.Enabled() {
					r.Use(rateLimit(limiter, logger))
				}
				r.Post("/", s.generate)
				r.Post("/async", s.generateAsync)
			})
			r.Get("/status/{id}", s.jobStatus)
			r.Get("/download/{id}/{type}", s.download)
		})
		r.Route("/instruments", func(r chi.Router) {
			r.Get("/", s.instruments)
			r.Get("/categories", s.instrumentCategories)
		})
		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.listFiles)
			r.Get("/file/{fileId}", s.serveLibraryFile)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route not found", "Cannot "+r.Method+" "+r.URL.RequestURI())
}
