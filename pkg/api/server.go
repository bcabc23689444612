// Package api implements the Streaming API Layer (C8): the HTTP surface
// that fronts the Graph Engine with Server-Sent Events, grounded on
// codeready-toolchain-tarsy/pkg/api's echo/v5 server (server.go,
// handler_chat.go, errors.go, middleware.go).
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowbase/orchestrator/graph"
	"github.com/flowbase/orchestrator/graph/emit"
	"github.com/flowbase/orchestrator/graph/store"
	"github.com/flowbase/orchestrator/pkg/agent"
	"github.com/flowbase/orchestrator/pkg/approval"
)

// Deps bundles the components the Server wires together. All fields are
// required except Metrics, which may be nil (no-op per graph.PrometheusMetrics'
// nil-receiver guards), and Logger, which defaults to slog.Default() when nil.
type Deps struct {
	Engine      *graph.Engine
	Store       store.Store
	Agents      *agent.Registry
	Approvals   *approval.Manager
	Subscribers *emit.SubscriberEmitter
	Metrics     *graph.PrometheusMetrics
	Logger      *slog.Logger

	// WebhookSecret is the shared secret the tracker signs callback bodies
	// with (spec §6 tracker_webhook_secret).
	WebhookSecret string

	// ApprovedStates / RejectedStates map the tracker's free-text issue
	// state to the approved/rejected decision (spec §6 allowed_webhook_states).
	ApprovedStates []string
	RejectedStates []string
}

// Server is the HTTP API server fronting the Graph Engine.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer constructs a Server and registers all routes.
func NewServer(deps Deps) *Server {
	e := echo.New()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{echo: e, deps: deps, logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(securityHeaders())
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/chat/stream", s.chatStreamHandler)
	s.echo.POST("/execute/stream", s.executeStreamHandler)
	s.echo.POST("/webhooks/approval", s.webhookHandler)

	s.echo.GET("/threads/:thread_id/checkpoints", s.listCheckpointsHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, for tests that need a
// random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// HealthResponse is the GET /health response body (spec §6).
type HealthResponse struct {
	Status  string `json:"status"`
	Store   string `json:"store"`
	Tracker string `json:"tracker"`
	LLM     string `json:"llm"`
}

func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{Status: "ok", Store: "ok", Tracker: "ok", LLM: "ok"}

	if _, err := s.deps.Store.GetLatest(reqCtx, "__healthcheck__"); err != nil && err != store.ErrNotFound {
		resp.Store = "unavailable"
	}

	if resp.Store == "unavailable" {
		resp.Status = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// threadIDFor returns sessionID as the thread ID if provided, else mints a
// fresh one, following spec §4.8 execute/stream's "reuses or creates a
// thread_id".
func threadIDFor(sessionID string, newID func() string) string {
	if sessionID != "" {
		return sessionID
	}
	return newID()
}

// classifyMode resolves the SessionMode a Classify call should bias towards
// for the given endpoint.
func classifyMode(endpoint string) graph.SessionMode {
	if endpoint == "chat" {
		return graph.SessionAsk
	}
	return graph.SessionAgent
}
