package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xmlongan/jmomden/internal/config"
	"github.com/xmlongan/jmomden/internal/metrics"
	"github.com/xmlongan/jmomden/internal/persistence"
	"github.com/xmlongan/jmomden/internal/service"
	"github.com/xmlongan/jmomden/pkg/pearson"
)

// Server is the JSON API over a model registry
type Server struct {
	router   *mux.Router
	server   *http.Server
	config   config.ServerConfig
	registry *service.Registry
	metrics  *metrics.Metrics
	health   persistence.RepositoryHealth
	limiter  *clientLimiter
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	version       string
	started       time.Time
	requestTO     time.Duration
	defaultDegree int
	defaultFamily string
}

// Option configures a Server
type Option func(*Server)

// WithMetrics exposes m at /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth adds the database check to /health
func WithHealth(h persistence.RepositoryHealth) Option {
	return func(s *Server) { s.health = h }
}

// WithLogger sets the request logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /health
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithModelDefaults sets the degree and family for build requests that
// omit them
func WithModelDefaults(degree int, family string) Option {
	return func(s *Server) { s.defaultDegree, s.defaultFamily = degree, family }
}

// NewServer creates a server; call Start to listen
func NewServer(cfg config.ServerConfig, reg *service.Registry, opts ...Option) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		config:        cfg,
		registry:      reg,
		logger:        log.Logger,
		version:       "dev",
		started:       time.Now(),
		requestTO:     5 * time.Second,
		defaultDegree: 4,
		defaultFamily: pearson.FamilyPearson,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit > 0 {
		s.limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// Streaming stays outside the JSON subrouter and its timeout
	s.router.HandleFunc("/models/{id}/stream", s.stream).Methods("GET")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.healthCheck).Methods("GET")
	api.HandleFunc("/models", s.buildModel).Methods("POST")
	api.HandleFunc("/models", s.listModels).Methods("GET")
	api.HandleFunc("/models/{id}", s.getModel).Methods("GET")
	api.HandleFunc("/models/{id}", s.deleteModel).Methods("DELETE")
	api.HandleFunc("/models/{id}/joint", s.joint).Methods("POST")
	api.HandleFunc("/models/{id}/conditional", s.conditional).Methods("POST")

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.server.Addr
}
