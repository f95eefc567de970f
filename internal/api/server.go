package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/logger"
)

// Server wires the controllers into an HTTP server.
type Server struct {
	cfg    config.ServerConfig
	logger *logger.Logger
	http   *http.Server
}

// HealthChecker reports readiness of a downstream dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewServer builds the gin engine, registers all routes, and returns a
// server ready to Run.
func NewServer(cfg config.ServerConfig, log *logger.Logger, health HealthChecker, controllers ...interface {
	RegisterRoutes(router *gin.RouterGroup)
}) *Server {
	if log == nil {
		log = logger.GetDefault()
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/health", func(ctx *gin.Context) {
		if health != nil {
			if err := health.HealthCheck(ctx.Request.Context()); err != nil {
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	for _, controller := range controllers {
		controller.RegisterRoutes(v1)
	}

	return &Server{
		cfg:    cfg,
		logger: log.WithField("component", "http_server"),
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// requestLogger emits one structured entry per request.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		log.WithFields(map[string]interface{}{
			"method":      ctx.Request.Method,
			"path":        ctx.FullPath(),
			"status":      ctx.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	}
}
