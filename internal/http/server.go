// Package http exposes the extraction loop over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatloop/internal/agent"
	"github.com/fyrsmithlabs/chatloop/internal/embeddings"
	"github.com/fyrsmithlabs/chatloop/internal/logging"
	"github.com/fyrsmithlabs/chatloop/internal/verifier"
)

// Runner executes one loop run.
type Runner interface {
	Run(ctx context.Context, req agent.Request) (*agent.Response, error)
}

// EngineStatus reports the embedding model state.
type EngineStatus interface {
	Status(ctx context.Context) embeddings.Status
}

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	Version      string
	RequireModel bool
	// BodyLimit caps request bodies, in echo's size notation.
	BodyLimit string
}

// Server serves the loop. Runs are serialized: one at a time per process.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	engine  EngineStatus
	logger  *zap.Logger
	config  *Config
	metrics *metrics

	runMu sync.Mutex
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, engine EngineStatus, logger *zap.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:         "localhost",
			Port:         9191,
			RequireModel: true,
		}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "8M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		runner:  runner,
		engine:  engine,
		logger:  logger,
		config:  cfg,
		metrics: newMetrics(otel.Meter(instrumentationName), logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return s.metrics.observe(c, next)
		}
	})
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/agent/run", s.handleRun)
	v1.GET("/engine", s.handleEngine)
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

func (s *Server) handleEngine(c echo.Context) error {
	return c.JSON(http.StatusOK, EngineResponse{
		Status:       s.engine.Status(c.Request().Context()),
		RequireModel: s.config.RequireModel,
	})
}

// handleRun executes one loop run. Model-gate responses are returned with
// 200 and ok=false; invalid requests get 400.
func (s *Server) handleRun(c echo.Context) error {
	var req agent.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid run request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidID(id) {
		ctx = logging.WithRequestID(ctx, id)
	}

	queued := time.Now()
	s.runMu.Lock()
	s.metrics.recordWait(ctx, time.Since(queued))
	resp, err := s.runner.Run(ctx, req)
	s.runMu.Unlock()

	switch {
	case errors.Is(err, agent.ErrInvalidRequest):
		s.metrics.recordRun(ctx, outcomeInvalid, "")
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.metrics.recordRun(ctx, outcomeCanceled, "")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case err != nil:
		s.metrics.recordRun(ctx, outcomeError, "")
		s.logger.Error("loop run failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "loop run failed"})
	}
	s.metrics.recordRun(ctx, runOutcome(resp), req.Host)
	return c.JSON(http.StatusOK, resp)
}

// runOutcome classifies a completed run. A run whose best attempt verified
// as FAIL still answers ok=true, so the verdict comes from the metrics.
func runOutcome(resp *agent.Response) string {
	switch {
	case resp == nil:
		return outcomeError
	case resp.Mode == agent.ModeModelUnavailable:
		return outcomeModelGate
	case !resp.OK:
		return outcomeError
	case resp.BestExtraction != nil && resp.BestExtraction.Metrics.Status == verifier.StatusFail:
		return outcomeVerifyFailed
	default:
		return outcomeOK
	}
}

// Start starts the HTTP server.
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
