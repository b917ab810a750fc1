// Package api implements the HTTP surface spec.md §4.9 describes: the
// chat-turn endpoint, the progress-websocket endpoint, abort, and
// session management. Grounded on tarsy's pkg/api/server.go: a thin
// Server wrapping *echo.Echo with every collaborator injected through
// NewServer rather than resolved via globals, and the same
// Start/StartWithListener/Shutdown lifecycle.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/orchestrator"
	"github.com/buxiuxian/summer-project/pkg/progress"
	"github.com/buxiuxian/summer-project/pkg/sessionstore"
	"github.com/buxiuxian/summer-project/pkg/version"
)

// maxBodyBytes bounds request bodies, well above a realistic chat
// message plus file attachments but far below an unbounded upload.
const maxBodyBytes = 8 * 1024 * 1024

// Server is the HTTP API server.
type Server struct {
	echo         *echo.Echo
	httpServer   *http.Server
	cfg          *config.Config
	orchestrator *orchestrator.Orchestrator
	hub          *progress.Hub
	abort        *orchestrator.AbortRegistry
	store        *sessionstore.Store
}

// NewServer creates a new API server with Echo v5.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, hub *progress.Hub, abort *orchestrator.AbortRegistry, store *sessionstore.Store) *Server {
	e := echo.New()

	s := &Server{
		echo:         e,
		cfg:          cfg,
		orchestrator: orch,
		hub:          hub,
		abort:        abort,
		store:        store,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers every API route.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(maxBodyBytes))

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/chat", s.sendChatHandler)
	v1.POST("/chat/abort/:session_id", s.abortHandler)
	v1.GET("/chat/progress/:session_id", s.progressHandler)

	v1.GET("/sessions", s.listSessionsHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.DELETE("/sessions/:id", s.deleteSessionHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"mode":    s.cfg.Mode,
		"version": version.Full(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
