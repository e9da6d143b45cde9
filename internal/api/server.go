package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"luminatext/pkg/logger"
	"luminatext/pkg/resilience"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config represents API server configuration
type Config struct {
	Host         string
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Server struct {
	config     Config
	httpServer *http.Server
}

// NewServer wires routes and middleware. metrics and limiter are optional.
func NewServer(config Config, handler *Handler, metrics http.Handler, limiter *resilience.RateLimiter) *Server {
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := NewRouter(handler, metrics, limiter)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		config:     config,
		httpServer: httpServer,
	}
}

func NewRouter(handler *Handler, metrics http.Handler, limiter *resilience.RateLimiter) *gin.Engine {
	router := gin.New()

	router.Use(RequestID())
	router.Use(AccessLog())
	router.Use(Recovery())
	router.Use(CORS(DefaultCORSConfig()))

	router.GET("/", handler.Root)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.POST("/transcribe", RateLimit(limiter), handler.Transcribe)
		api.GET("/history", handler.History)
		api.DELETE("/history/:id", handler.Delete)
	}

	return router
}

// Start serves in the background. A listener failure other than a normal
// shutdown is fatal.
func (s *Server) Start() {
	logger.Info("Starting API server",
		zap.String("address", s.httpServer.Addr),
		zap.String("environment", s.config.Environment))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	logger.Info("API server shutdown complete")
	return nil
}
