// Package mcpserver exposes the orchestration core's team, document,
// handoff, quality-gate, and team-protocol operations as MCP (Model
// Context Protocol) tools (see toolDefinitions for the exact set; registry
// search, access grants, and workflow control are not exposed), the natural "programmatic
// surface" for an agent orchestration core — mirroring the teacher's own
// domain, an MCP server coordinating work among AI agents.
package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fluxteam/orchestrator-core/internal/app"
	"github.com/fluxteam/orchestrator-core/internal/config"
	"github.com/fluxteam/orchestrator-core/internal/obsmetrics"
)

// Server wraps the MCP protocol server with the orchestration core it
// fronts, following the teacher's MCPServer/Session/SSE shape.
type Server struct {
	echo       *echo.Echo
	cfg        *config.Config
	app        *app.App
	mcpServer  server.MCPServer
	sessions   map[string]*Session
	sessionsMu sync.RWMutex
}

// Session represents one connected MCP client.
type Session struct {
	ID            string
	CreatedAt     time.Time
	LastActivity  time.Time
	ResponseQueue chan []byte
	Closed        chan struct{}
}

// New builds an MCP server fronting the given application instance.
func New(cfg *config.Config, a *app.App) *Server {
	s := &Server{
		cfg:      cfg,
		app:      a,
		sessions: make(map[string]*Session),
	}
	s.mcpServer = server.NewDefaultServer("orchestrator-core", "1.0.0")
	s.registerTools()
	return s
}

// Start runs the HTTP+SSE transport.
func (s *Server) Start(addr string) error {
	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit("1M"))

	s.echo.GET("/mcp/v1/sse", s.handleSSE)
	s.echo.POST("/mcp/v1/message", s.handleMessage, middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: s.cfg.RequestTimeout,
	}))

	go s.runSessionCleanup()

	slog.Info("starting MCP SSE server", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the transport.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.echo != nil {
		return s.echo.Shutdown(ctx)
	}
	return nil
}

func (s *Server) runSessionCleanup() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session cleanup goroutine panicked, restarting", "panic", r)
			time.Sleep(5 * time.Second)
			go s.runSessionCleanup()
		}
	}()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		var expired []string
		s.sessionsMu.RLock()
		for id, sess := range s.sessions {
			if now.Sub(sess.LastActivity) > time.Hour {
				expired = append(expired, id)
			}
		}
		s.sessionsMu.RUnlock()
		if len(expired) == 0 {
			continue
		}
		s.sessionsMu.Lock()
		for _, id := range expired {
			delete(s.sessions, id)
		}
		s.sessionsMu.Unlock()
		obsmetrics.DecrementActiveSessions()
	}
}

func (s *Server) handleSSE(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	sessionID := generateSessionID()
	now := time.Now()
	session := &Session{ID: sessionID, CreatedAt: now, LastActivity: now, ResponseQueue: make(chan []byte, 100), Closed: make(chan struct{})}

	s.sessionsMu.Lock()
	s.sessions[sessionID] = session
	s.sessionsMu.Unlock()
	obsmetrics.IncrementActiveSessions()

	defer func() {
		s.sessionsMu.Lock()
		if current, ok := s.sessions[sessionID]; ok && current == session {
			delete(s.sessions, sessionID)
			close(session.Closed)
		}
		s.sessionsMu.Unlock()
		obsmetrics.DecrementActiveSessions()
	}()

	var sb strings.Builder
	sb.Grow(100)
	if c.Request().TLS != nil {
		sb.WriteString("https://")
	} else {
		sb.WriteString("http://")
	}
	sb.WriteString(c.Request().Host)
	sb.WriteString("/mcp/v1/message?session_id=")
	sb.WriteString(sessionID)

	if _, err := c.Response().Write([]byte("event: endpoint\ndata: " + sb.String() + "\n\n")); err != nil {
		return nil
	}
	c.Response().Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	clientGone := c.Request().Context().Done()

	for {
		select {
		case payload := <-session.ResponseQueue:
			if _, err := c.Response().Write([]byte("event: message\ndata: " + string(payload) + "\n\n")); err != nil {
				return nil
			}
			c.Response().Flush()
		case <-ticker.C:
			if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
				return nil
			}
			c.Response().Flush()
		case <-clientGone:
			return nil
		}
	}
}

func (s *Server) handleMessage(c echo.Context) error {
	sessionID := c.QueryParam("session_id")

	s.sessionsMu.RLock()
	session, sessionExists := s.sessions[sessionID]
	s.sessionsMu.RUnlock()

	var request server.JSONRPCRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, jsonRPCError(nil, -32700, "parse error: "+err.Error()))
	}
	if request.JSONRPC != "2.0" {
		return c.JSON(http.StatusBadRequest, jsonRPCError(request.ID, -32600, "jsonrpc field must be '2.0'"))
	}

	response := s.mcpServer.Request(c.Request().Context(), request)

	if sessionExists {
		s.sessionsMu.Lock()
		if sess, ok := s.sessions[sessionID]; ok {
			sess.LastActivity = time.Now()
		}
		s.sessionsMu.Unlock()

		if request.ID == nil {
			return c.NoContent(http.StatusAccepted)
		}
		payload, err := json.Marshal(response)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, jsonRPCError(request.ID, -32603, "failed to encode response"))
		}
		select {
		case session.ResponseQueue <- payload:
			return c.NoContent(http.StatusAccepted)
		case <-session.Closed:
			return c.JSON(http.StatusGone, jsonRPCError(request.ID, -32000, "session closed"))
		case <-time.After(time.Second):
			return c.JSON(http.StatusServiceUnavailable, jsonRPCError(request.ID, -32000, "session busy"))
		}
	}

	return c.JSON(http.StatusOK, response)
}

func jsonRPCError(id any, code int, message string) server.JSONRPCResponse {
	return server.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}{Code: code, Message: message},
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess_%d", time.Now().UnixNano())
	}
	return "sess_" + hex.EncodeToString(b)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []interface{}{mcp.TextContent{Type: "text", Text: text}}}
}

func errorResult(format string, args ...any) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []interface{}{mcp.TextContent{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}, nil
}
