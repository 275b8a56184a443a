// Package server is the HTTP transport in front of the guard pipeline. It
// enforces the resource-exhaustion defenses the pipeline expects from its
// caller: body size cap, per-request timeout, bounded concurrency and rate
// limiting, all before an inspection starts.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/brnakin/llm-egress-guard/internal/audit"
	"github.com/brnakin/llm-egress-guard/internal/config"
	"github.com/brnakin/llm-egress-guard/internal/export"
	"github.com/brnakin/llm-egress-guard/internal/guard"
	"github.com/brnakin/llm-egress-guard/internal/logger"
	"github.com/brnakin/llm-egress-guard/internal/websocket"
)

// Server hosts the guard API.
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	guard   *guard.Guard
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	auditor *audit.Store
	spool   *export.Spool

	limiter   *ipLimiter
	semaphore chan struct{}
}

// Options carries the optional collaborators.
type Options struct {
	Hub     *websocket.Hub
	Auditor *audit.Store
	Spool   *export.Spool
}

// New creates the server around an already-constructed guard.
func New(cfg *config.Config, g *guard.Guard, log *logger.Logger, opts Options) *Server {
	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		guard:     g,
		router:    mux.NewRouter(),
		wsHub:     opts.Hub,
		auditor:   opts.Auditor,
		spool:     opts.Spool,
		semaphore: make(chan struct{}, cfg.Limits.MaxConcurrent),
	}
	if cfg.Limits.RateLimit.Enabled {
		s.limiter = newIPLimiter(cfg.Limits.RateLimit.RequestsPerMin/60.0, cfg.Limits.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.authMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.concurrencyMiddleware)
	api.HandleFunc("/guard", s.handleGuard).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// Start starts the HTTP server and the hub if one is attached.
func (s *Server) Start() error {
	s.logger.Info("Starting egress guard server",
		zap.Int("port", s.config.Server.Port),
		zap.Int64("max_body_bytes", s.config.Limits.MaxBodyBytes),
		zap.Int("max_concurrent", s.config.Limits.MaxConcurrent),
		zap.Bool("rate_limit", s.config.Limits.RateLimit.Enabled),
	)

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		go s.wsHub.Run()
	}
	if s.limiter != nil {
		go s.limiter.cleanupLoop()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping egress guard server")
	return s.server.Shutdown(ctx)
}
