// Package server exposes the analysis pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/huangsam/xray/core"
	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/internal/stream"
	"github.com/huangsam/xray/schema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	requestTimeout = 60 * time.Second
	writeWait      = 10 * time.Second
)

// Analyzer is the part of the orchestrator the server drives.
type Analyzer interface {
	Submit(ctx context.Context, repoURL string, months int) (schema.Job, bool, error)
	Status(id string) (schema.JobStatusView, error)
	Result(id string) (*schema.AnalysisResult, error)
	Subscribe(id string) (*stream.Subscription, error)
	Unsubscribe(sub *stream.Subscription)
	Cached(identity string) (*schema.CacheEntry, error)
	ListCached() ([]schema.CachedSummary, error)
	DeleteCached(identity string) error
}

var _ Analyzer = (*core.Orchestrator)(nil) // Compile-time check

// Config holds the server settings.
type Config struct {
	Addr            string
	CORSOrigins     []string
	RateLimitMax    int
	RateLimitWindow time.Duration
	Keepalive       time.Duration
	DefaultMonths   int
}

// ConfigFromContract extracts the server settings from the process configuration.
func ConfigFromContract(cfg *contract.Config) Config {
	return Config{
		Addr:            cfg.Addr,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		Keepalive:       cfg.Keepalive,
		DefaultMonths:   cfg.Months,
	}
}

// Server is the HTTP front of an Analyzer.
type Server struct {
	cfg        Config
	analyzer   Analyzer
	limiter    *ipLimiter
	validate   *validator.Validate
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server with all routes mounted.
func New(cfg Config, analyzer Analyzer, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = contract.DefaultAddr
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = contract.DefaultKeepalive
	}
	if cfg.DefaultMonths <= 0 {
		cfg.DefaultMonths = contract.DefaultMonths
	}
	if logger == nil {
		logger = contract.NewDiscardLogger()
	}
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		limiter:  newIPLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		validate: validator.New(),
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.allowOrigin}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// The stream outlives any request timeout
	r.Get("/api/ws/{id}", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/api/analyze", s.handleAnalyze)
		r.Get("/api/status/{id}", s.handleStatus)
		r.Get("/api/results/{id}", s.handleResults)
		r.Get("/api/cached", s.handleListCached)
		r.Get("/api/cached/*", s.handleGetCached)
		r.Delete("/api/cached/*", s.handleDeleteCached)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("Server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// PruneLimiter forgets clients idle for longer than the rate-limit window.
func (s *Server) PruneLimiter() int {
	return s.limiter.Prune()
}

// allowOrigin accepts same-host requests and the configured CORS origins.
func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(s.cfg.CORSOrigins, "*") {
		return true
	}
	return slices.Contains(s.cfg.CORSOrigins, origin)
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
