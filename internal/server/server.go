package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sidekick-relay/internal/config"
	"sidekick-relay/internal/models"
	"sidekick-relay/internal/relay"
)

const (
	maxBodyBytes        = 8 << 20 // 8 MiB, room for an inline image attachment
	shutdownGracePeriod = 10 * time.Second
	readHeaderTimeout   = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Coordinator is the relay surface the HTTP layer drives.
type Coordinator interface {
	Start(desc models.RequestDescriptor) (*relay.Session, error)
	Cancel() bool
	ClearHistory()
	AppendHistory(turn models.Turn) error
	History(key string) []models.Turn
	Subscribe() *relay.Subscription
}

// ModelLister enumerates the models a backend advertises.
type ModelLister interface {
	ListModels(ctx context.Context, base string) ([]models.Model, error)
}

type Server struct {
	relay    Coordinator
	models   ModelLister
	defaults atomic.Pointer[config.BackendConfig]
	app      *echo.Echo
	address  string
}

// New constructs an HTTP server wired with relay routes and middleware.
// Metrics are served from gatherer when it is non-nil.
func New(cfg config.Config, coord Coordinator, lister ModelLister, gatherer prometheus.Gatherer) (*Server, error) {
	if coord == nil {
		return nil, errors.New("coordinator must not be nil")
	}
	if lister == nil {
		return nil, errors.New("model lister must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		relay:   coord,
		models:  lister,
		app:     e,
		address: cfg.Server.Addr(),
	}
	srv.SetBackendDefaults(cfg.Backend)

	srv.registerRoutes()
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return srv, nil
}

// SetBackendDefaults replaces the values used to fill blank descriptor
// fields. It is safe to call while requests are being served.
func (s *Server) SetBackendDefaults(b config.BackendConfig) {
	s.defaults.Store(&b)
}

// BackendDefaults returns the values currently used to fill blank descriptor fields.
func (s *Server) BackendDefaults() config.BackendConfig {
	return *s.defaults.Load()
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server", "addr", s.address)

	// No write timeout: event streams stay open for as long as the client listens.
	httpServer := &http.Server{
		Addr:              s.address,
		Handler:           s.app,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)

	g := s.app.Group("/v1/relay")
	g.POST("/completions", s.handleStart)
	g.POST("/stop", s.handleStop)
	g.GET("/history", s.handleGetHistory)
	g.POST("/history", s.handleAppendHistory)
	g.DELETE("/history", s.handleClearHistory)
	g.POST("/prompts", s.handleComposePrompt)
	g.GET("/commands", s.handleCommands)
	g.GET("/models", s.handleModels)
	g.GET("/events", s.handleEvents)
	g.GET("/ws", s.handleWebSocket)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError classifies relay errors for the HTTP surface.
func toHTTPError(err error) error {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr
	case errors.Is(err, relay.ErrSessionActive):
		return requestError{
			Status:  http.StatusConflict,
			Message: err.Error(),
			Type:    "conflict_error",
			Code:    "session_active",
		}
	case errors.Is(err, relay.ErrShuttingDown):
		return requestError{
			Status:  http.StatusServiceUnavailable,
			Message: err.Error(),
			Type:    "unavailable_error",
			Code:    "shutting_down",
		}
	case errors.Is(err, relay.ErrInvalidDescriptor), errors.Is(err, relay.ErrInvalidTurn):
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	default:
		return requestError{
			Status:  http.StatusBadGateway,
			Message: err.Error(),
			Type:    "upstream_error",
		}
	}
}
