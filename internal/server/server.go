// Package server runs the HTTP side of basemcp: the streamable MCP endpoint,
// health probes, Prometheus metrics and public receipt lookup.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/basemcp/internal/config"
	"github.com/mbd888/basemcp/internal/health"
	"github.com/mbd888/basemcp/internal/idgen"
	"github.com/mbd888/basemcp/internal/logging"
	"github.com/mbd888/basemcp/internal/metrics"
	"github.com/mbd888/basemcp/internal/ratelimit"
	"github.com/mbd888/basemcp/internal/receipts"
	"github.com/mbd888/basemcp/internal/security"
	"github.com/mbd888/basemcp/internal/validation"
)

const (
	// DefaultMCPPath is where the streamable MCP transport is mounted.
	DefaultMCPPath = "/mcp"

	drainDelay      = 2 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Server wraps the gin router and the http.Server running it.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	router   *gin.Engine
	httpSrv  *http.Server
	limiter  *ratelimit.Limiter
	checks   *health.Registry
	mcpPath  string
	mcp      http.Handler
	receipts *receipts.Service
	drain    time.Duration

	ready atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMCP mounts an MCP transport at path (DefaultMCPPath when empty).
func WithMCP(path string, h http.Handler) Option {
	return func(s *Server) {
		if path == "" {
			path = DefaultMCPPath
		}
		s.mcpPath, s.mcp = path, h
	}
}

// WithReceipts exposes receipt lookup and verification.
func WithReceipts(svc *receipts.Service) Option {
	return func(s *Server) { s.receipts = svc }
}

// WithHealthCheck adds a checker to /health.
func WithHealthCheck(name string, check health.Checker) Option {
	return func(s *Server) { s.checks.Register(name, check) }
}

// New builds the router. Nothing listens until Run.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		checks: health.NewRegistry(),
		drain:  drainDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	rl := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rl.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.limiter = ratelimit.New(rl)
	s.router.Use(s.limiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if !idgen.Valid(requestID) {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Debug("request completed", attrs...)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	if s.mcp != nil {
		h := gin.WrapH(s.mcp)
		s.router.GET(s.mcpPath, h)
		s.router.POST(s.mcpPath, h)
		s.router.DELETE(s.mcpPath, h)
	}
	if s.receipts != nil {
		receipts.NewHandler(s.receipts).RegisterRoutes(s.router.Group("/v1"))
	}
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// Version is reported by /health.
var Version = "1.0.0"

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run listens on cfg.Port until ctx is cancelled, then drains and shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: the MCP transport holds SSE streams open.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "mcp_path", s.mcpPath)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.ready.Store(true)

	select {
	case err := <-errCh:
		s.limiter.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}
	return s.Shutdown()
}

// Shutdown marks the server not ready, waits for load balancers to notice,
// then stops accepting connections.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	time.Sleep(s.drain)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer s.limiter.Stop()

	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
