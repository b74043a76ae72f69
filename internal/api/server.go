// Package api provides the HTTP API server for shipyard's build
// orchestration service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shipyardci/shipyard/internal/api/middleware"
	"github.com/shipyardci/shipyard/internal/config"
	"github.com/shipyardci/shipyard/internal/metrics"
	"github.com/shipyardci/shipyard/internal/orchestrator"
)

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	ingress    *orchestrator.Ingress
	httpServer *http.Server
	router     *gin.Engine
}

// ServerConfig holds server configuration options.
type ServerConfig struct {
	// Config is the application configuration.
	Config *config.Config

	// Logger is the structured logger.
	Logger *slog.Logger

	// Ingress is the orchestrator core the handlers dispatch into.
	Ingress *orchestrator.Ingress

	// CORSConfig is the CORS configuration.
	CORSConfig middleware.CORSConfig

	// RateLimitConfig is the rate limiting configuration.
	RateLimitConfig middleware.RateLimitConfig

	// MetricsEnabled turns on Prometheus metrics collection.
	MetricsEnabled bool

	// Debug enables verbose, human-readable logging and gin's debug mode.
	Debug bool
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig(cfg *config.Config, ingress *orchestrator.Ingress, logger *slog.Logger) ServerConfig {
	return ServerConfig{
		Config:          cfg,
		Logger:          logger,
		Ingress:         ingress,
		CORSConfig:      middleware.DefaultCORSConfig(),
		RateLimitConfig: middleware.DefaultRateLimitConfig(),
		MetricsEnabled:  true,
	}
}

// NewServer creates a new API server.
func NewServer(serverCfg ServerConfig) *Server {
	logger := serverCfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if !serverCfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	if serverCfg.MetricsEnabled {
		metrics.Register()
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	if serverCfg.MetricsEnabled {
		router.Use(middleware.Metrics())
	}
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(serverCfg.CORSConfig))
	router.Use(middleware.RateLimiter(serverCfg.RateLimitConfig))

	s := &Server{
		cfg:     serverCfg.Config,
		logger:  logger.With("component", "api-server"),
		ingress: serverCfg.Ingress,
		router:  router,
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", serverCfg.Config.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket streams can run for the lifetime of a build.
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server, terminating TLS itself when the
// configuration enables SSL.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)

	var err error
	if s.cfg.SSL.Enable {
		err = s.httpServer.ListenAndServeTLS(s.cfg.SSL.Cert, s.cfg.SSL.Key)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
