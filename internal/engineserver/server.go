// Package engineserver implements the HTTP engine service that a
// RemoteEngine submits searches to.
package engineserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/bioclick/internal/config"
	"github.com/me/bioclick/pkg/model"
)

// Server is the engine HTTP service.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	searcher  Searcher
	databases map[string]bool
	registry  *prometheus.Registry
	metrics   *httpMetrics
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithSearcher replaces the default SummarySearcher.
func WithSearcher(s Searcher) Option {
	return func(srv *Server) {
		srv.searcher = s
	}
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(srv *Server) {
		srv.registry = reg
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "engine-server"),
		config:    cfg,
		startTime: time.Now(),
		searcher:  SummarySearcher{},
		databases: make(map[string]bool, len(cfg.Databases)),
	}
	for _, db := range cfg.Databases {
		s.databases[db] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	s.metrics = newHTTPMetrics(s.registry)

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(s.metrics.instrument(s.logger))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Post(model.RunBlastPath, s.handleRunBlast)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}
