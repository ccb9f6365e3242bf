// Package http provides the HTTP API for raglab.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/raglab/internal/config"
	"github.com/fyrsmithlabs/raglab/internal/document"
	"github.com/fyrsmithlabs/raglab/internal/rag"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pipeline is the set of operations exposed over HTTP.
type Pipeline interface {
	Ingest(ctx context.Context, source, text string) (int, error)
	Ask(ctx context.Context, question string) (*rag.Answer, error)
	Probe(ctx context.Context) (*rag.ProbeResult, error)
	Health() *rag.HealthReport
}

// Server provides HTTP endpoints for raglab.
type Server struct {
	echo     *echo.Echo
	pipeline Pipeline
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	// BodyLimit caps request bodies, e.g. "32M".
	BodyLimit string
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

// ConfigFromServer converts the application server settings.
func ConfigFromServer(cfg config.ServerConfig) *Config {
	return &Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		BodyLimit:   cfg.BodyLimit,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
	}
}

// NewServer creates a new HTTP server.
func NewServer(pipeline Pipeline, logger *zap.Logger, cfg *Config) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8001,
		}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "32M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		pipeline: pipeline,
		logger:   logger,
		config:   cfg,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(requestID(logger))
	e.Use(accessLog(logger))
	e.Use(tracing())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowCredentials: true,
			AllowHeaders:     []string{"*"},
		}))
	}
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(rateLimit(cfg.RateLimit, cfg.RateBurst))

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/ingest", s.handleIngest)
	s.echo.POST("/ask", s.handleAsk)
	s.echo.GET("/llm_test", s.handleLLMTest)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// IngestResponse is the response body for POST /ingest.
type IngestResponse struct {
	Inserted int `json:"inserted"`
}

// AskRequest is the request body for POST /ask.
type AskRequest struct {
	Question string `json:"question"`
}

// handleHealth reports liveness without calling any upstream service.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Health())
}

// handleIngest indexes the uploaded multipart "file".
func (s *Server) handleIngest(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "file field is required")
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading upload: %w", err)
	}

	text, err := document.Decode(fh.Filename, data)
	if err != nil {
		return err
	}

	n, err := s.pipeline.Ingest(c.Request().Context(), fh.Filename, text)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, IngestResponse{Inserted: n})
}

// handleAsk answers a question from the indexed documents.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}

	answer, err := s.pipeline.Ask(c.Request().Context(), req.Question)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, answer)
}

// handleLLMTest round-trips a trivial prompt through the generation service.
func (s *Server) handleLLMTest(c echo.Context) error {
	res, err := s.pipeline.Probe(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.Addr()))
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	start := time.Now()
	err := s.echo.Shutdown(ctx)
	s.logger.Info("http server stopped", zap.Duration("drain", time.Since(start)))
	return err
}
