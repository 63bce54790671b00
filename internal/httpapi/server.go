// Package httpapi exposes chartd's document ingestion and context
// retrieval over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/chartd/internal/document"
	"github.com/fyrsmithlabs/chartd/internal/ingest"
	"github.com/fyrsmithlabs/chartd/internal/retrieval"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// Server routes ingestion and retrieval requests to the underlying
// services.
type Server struct {
	echo      *echo.Echo
	docs      document.MetadataStore
	pipeline  *ingest.Pipeline
	retriever *retrieval.Service
	logger    *zap.Logger
	config    Config
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(
	docs document.MetadataStore,
	pipeline *ingest.Pipeline,
	retriever *retrieval.Service,
	cfg Config,
	logger *zap.Logger,
) (*Server, error) {
	if docs == nil || pipeline == nil || retriever == nil {
		return nil, fmt.Errorf("all server dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 * 1024 * 1024
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadBytes)))
	e.Use(requestLogger(logger))

	s := &Server{
		echo:      e,
		docs:      docs,
		pipeline:  pipeline,
		retriever: retriever,
		logger:    logger.Named("http"),
		config:    cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleIngestDocument)
	v1.GET("/documents", s.handleListDocuments)
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)
	v1.POST("/context", s.handleGetContext)
}

// requestLogger logs one line per request with correlation ID.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
