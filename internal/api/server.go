// Package api provides the HTTP API server for AgentDeck.
// It uses Echo framework to serve the dashboard's JSON endpoints and a
// WebSocket feed that pushes change pulses to connected views.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/agentdeck/agentdeck/internal/cache"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/gateway"
	"github.com/agentdeck/agentdeck/internal/integrations"
	"github.com/agentdeck/agentdeck/internal/realtime"
	"github.com/agentdeck/agentdeck/internal/repo"
	"github.com/agentdeck/agentdeck/internal/version"
)

// Query cache keys served by this API. The realtime router binds the
// matching collections to these keys so pushed changes invalidate them.
const (
	KeyAgents    cache.Key = "agents:all"
	KeyWorkflows cache.Key = "workflows:all"
	KeyLogs      cache.Key = "logs:recent"
)

// Server represents the AgentDeck API server.
type Server struct {
	echo      *echo.Echo
	config    *config.Config
	store     *cache.Store
	router    *realtime.Router
	agents    *repo.Agents
	workflows *repo.Workflows
	logs      *repo.Logs
	catalog   *integrations.Catalog
	wsHub     *Hub // WebSocket hub for change pulses
}

// debugLog logs a message only if debug mode is enabled in config
func (s *Server) debugLog(format string, args ...interface{}) {
	if s.config.Server.Debug {
		log.Printf(format, args...)
	}
}

// Deps bundles the wired components the server reads and writes through.
type Deps struct {
	Store     *cache.Store
	Router    *realtime.Router
	Agents    *repo.Agents
	Workflows *repo.Workflows
	Logs      *repo.Logs
	Catalog   *integrations.Catalog
}

// New creates a new API server instance.
func New(cfg *config.Config, deps Deps) *Server {
	e := echo.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug

	// Set custom error handler
	e.HTTPErrorHandler = HTTPErrorHandler

	// Create WebSocket hub
	hub := NewHub()

	// Create server instance
	server := &Server{
		echo:      e,
		config:    cfg,
		store:     deps.Store,
		router:    deps.Router,
		agents:    deps.Agents,
		workflows: deps.Workflows,
		logs:      deps.Logs,
		catalog:   deps.Catalog,
		wsHub:     hub,
	}

	// Start WebSocket hub in background
	go hub.Run()

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Logger middleware
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))

	// Recover middleware
	s.echo.Use(middleware.Recover())

	// Security headers middleware
	s.echo.Use(SecurityHeaders)

	// CORS middleware
	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Rate limiting
	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	// Content-Type validation middleware for API routes
	s.echo.Use(ValidateContentType)

	// Accept header validation middleware
	s.echo.Use(ValidateAcceptHeader)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/", s.healthCheck)

	// Prometheus metrics
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	// Agent routes
	agents := v1.Group("/agents")
	agents.GET("", s.listAgents)
	agents.GET("/:id", s.getAgent, ValidateIDFormat)
	agents.POST("", s.createAgent)
	agents.PUT("/:id", s.updateAgent, ValidateIDFormat)
	agents.DELETE("/:id", s.deleteAgent, ValidateIDFormat)
	agents.POST("/:id/toggle", s.toggleAgent, ValidateIDFormat)

	// Workflow routes
	workflows := v1.Group("/workflows")
	workflows.GET("", s.listWorkflows)
	workflows.GET("/:id", s.getWorkflow, ValidateIDFormat)
	workflows.POST("", s.createWorkflow)
	workflows.PUT("/:id", s.updateWorkflow, ValidateIDFormat)
	workflows.PUT("/:id/status", s.setWorkflowStatus, ValidateIDFormat)
	workflows.DELETE("/:id", s.deleteWorkflow, ValidateIDFormat)

	// Log routes
	logs := v1.Group("/logs")
	logs.GET("", s.listLogs)
	logs.POST("", s.appendLog)

	// Statistics routes
	stats := v1.Group("/stats")
	stats.GET("", s.getOverview)
	stats.GET("/logs", s.getLogLevelCounts)

	// Integration catalog
	v1.GET("/integrations", s.listIntegrations)

	// Cache introspection
	v1.GET("/cache/state", s.getCacheState)

	// WebSocket routes
	ws := v1.Group("/ws")
	ws.GET("/changes", s.HandleWebSocket)
	ws.GET("/stats", s.GetWebSocketStats)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	fmt.Printf("Starting AgentDeck API Server\n")
	fmt.Printf("   Address: http://%s\n", addr)
	fmt.Printf("   Gateway: %s\n", s.config.Gateway.URL)
	fmt.Printf("   Debug: %v\n", s.config.Server.Debug)
	fmt.Println()

	// Configure server timeouts
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	fmt.Println("\nShutting down AgentDeck API Server...")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	fmt.Println("Server shutdown complete")
	return nil
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"service":       "agentdeck",
		"version":       version.Get().Version,
		"open_channels": s.router.OpenChannels(),
		"ws_clients":    s.wsHub.ClientCount(),
	})
}

// BroadcastChange pushes a change pulse to all WebSocket clients. The
// realtime router calls this as its event sink.
func (s *Server) BroadcastChange(ev gateway.ChangeEvent) {
	s.debugLog("DEBUG: broadcasting %s on %s to %d clients", ev.Kind, ev.Collection, s.wsHub.ClientCount())
	if err := s.wsHub.BroadcastEvent(ChangeNotice{
		Kind:       ev.Kind,
		Collection: ev.Collection,
		RecordID:   ev.RecordID(),
	}); err != nil {
		log.Printf("ERROR: Failed to broadcast event: %v", err)
	}
}

// ServeHTTP allows Server to implement http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
