// Package server exposes search, package details and cache statistics as a
// JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/npmscout/pkg/cache"
	"github.com/matzehuels/npmscout/pkg/enrich"
	"github.com/matzehuels/npmscout/pkg/model"
	"github.com/matzehuels/npmscout/pkg/pipeline"
)

// Searcher runs one search flow.
type Searcher interface {
	Execute(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Files serves package contents from the CDN.
type Files interface {
	FetchTree(ctx context.Context, pkg, version string) (*model.FileNode, error)
	FetchReadme(ctx context.Context, pkg, version string) (name, content string, err error)
}

// Config wires the server to the application services. Searcher and
// Enricher are required; a nil Files disables /api/tree and /api/readme, and a
// nil Gatherer disables /metrics.
type Config struct {
	Searcher Searcher
	Enricher *enrich.Pipeline
	Files    Files
	Cache    *cache.Store
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg    Config
	logger *log.Logger
	router chi.Router
}

// New builds the router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewStore(nil, 0)
	}
	s := &Server{cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.search)
		r.Get("/details", s.details)
		r.Get("/tree", s.tree)
		r.Get("/readme", s.readme)
		r.Get("/cache/stats", s.cacheStats)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
