// Package api binds the conversation core to HTTP. The binding stays thin:
// envelopes in, envelopes out, faults mapped onto statuses. Everything
// conversational lives in chat; everything session-shaped in session.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/marhaba-ai/marhaba/chat"
	"github.com/marhaba-ai/marhaba/common"
	"github.com/marhaba-ai/marhaba/session"
)

// Conversations is the slice of the chat engine the server drives.
type Conversations interface {
	HandleMessage(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Sessions is the slice of the session store the server exposes.
type Sessions interface {
	Create(ctx context.Context, metadata map[string]any, rememberMe bool) (*session.Context, session.Credentials, error)
	Validate(ctx context.Context, id string) (session.Validation, error)
	Refresh(ctx context.Context, id string) (time.Time, error)
	Delete(ctx context.Context, id string) error
}

// Config carries the HTTP binding tunables.
type Config struct {
	Host            string
	Port            int
	APIKey          string
	Debug           bool
	BodyLimit       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	RateLimit       float64
	Version         string
}

// DefaultConfig returns the binding defaults. Read and write timeouts leave
// headroom over the 30 s whole-turn deadline so the core, not the listener,
// decides when a turn is out of time.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		BodyLimit:       "64K",
		ReadTimeout:     35 * time.Second,
		WriteTimeout:    35 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

// Server is the HTTP surface: session lifecycle, chat turns and health on
// one echo instance.
type Server struct {
	echo     *echo.Echo
	engine   Conversations
	sessions Sessions
	health   func() map[string]any
	cfg      Config
	log      *logrus.Logger
}

// NewServer wires middleware and routes. healthDetails may be nil; when set
// its result is reported under the health endpoint's details key.
func NewServer(engine Conversations, sessions Sessions, healthDetails func() map[string]any, cfg Config, log *logrus.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.Recover())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodDelete,
				http.MethodOptions,
			},
			AllowHeaders: []string{
				echo.HeaderOrigin,
				echo.HeaderContentType,
				echo.HeaderAccept,
				"X-API-Key",
			},
		}))
	}
	e.Use(middleware.RequestID())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(cfg.RateLimit),
		)))
	}

	s := &Server{echo: e, engine: engine, sessions: sessions, health: healthDetails, cfg: cfg, log: log}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1", APIKeyMiddleware(cfg.APIKey))
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleValidateSession)
	v1.POST("/sessions/:id/refresh", s.handleRefreshSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.POST("/chat", s.handleChat)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.WithField("addr", srv.Addr).Info("HTTP surface listening")
	return s.echo.StartServer(srv)
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the health endpoint envelope.
type HealthResponse struct {
	Status  string         `json:"status"`
	Service string         `json:"service,omitempty"`
	Version string         `json:"version,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type createSessionRequest struct {
	Metadata   map[string]any `json:"metadata,omitempty"`
	RememberMe bool           `json:"remember_me,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

type refreshSessionResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// errorBody is the uniform error envelope for every failed request.
type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "healthy", Service: "marhaba", Version: s.cfg.Version}
	if s.health != nil {
		resp.Details = s.health()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, common.NewFault(common.KindBadInput, "request body is not valid JSON"))
	}
	sc, creds, err := s.sessions.Create(c.Request().Context(), req.Metadata, req.RememberMe)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, createSessionResponse{
		SessionID: sc.ID,
		Token:     creds.Token,
		TokenType: creds.TokenType,
		ExpiresIn: creds.ExpiresIn,
	})
}

func (s *Server) handleValidateSession(c echo.Context) error {
	v, err := s.sessions.Validate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if !v.Valid {
		return s.fail(c, common.NewFault(common.KindSessionExpired, "session not found or expired"))
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) handleRefreshSession(c echo.Context) error {
	id := c.Param("id")
	expires, err := s.sessions.Refresh(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, refreshSessionResponse{SessionID: id, ExpiresAt: expires})
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if err := s.sessions.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleChat(c echo.Context) error {
	var req chat.Request
	if err := c.Bind(&req); err != nil {
		return s.fail(c, common.NewFault(common.KindBadInput, "request body is not valid JSON"))
	}
	resp, err := s.engine.HandleMessage(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// fail renders any error as the uniform envelope. Server-side kinds also go
// to the log; client mistakes do not.
func (s *Server) fail(c echo.Context, err error) error {
	kind := common.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"correlation_id": common.CorrelationOf(err),
			"path":           c.Path(),
		}).Error("request failed")
	}
	return c.JSON(status, errorBody{Error: errorInfo{
		Kind:          string(kind),
		Message:       common.UserMessage(err),
		CorrelationID: common.CorrelationOf(err),
	}})
}

// StatusFor maps fault kinds onto HTTP statuses.
func StatusFor(kind common.Kind) int {
	switch kind {
	case common.KindBadInput:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindSessionExpired:
		return http.StatusUnauthorized
	case common.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case common.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// APIKeyMiddleware guards a route group with a static key carried in the
// X-API-Key header. An empty configured key disables the check.
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}
			if c.Request().Header.Get("X-API-Key") != apiKey {
				return c.JSON(http.StatusUnauthorized, errorBody{Error: errorInfo{
					Kind:    "unauthorized",
					Message: "missing or invalid API key",
				}})
			}
			return next(c)
		}
	}
}
