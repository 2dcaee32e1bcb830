// Package mcp exposes read-only donation tools to MCP clients.
package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
)

// Server is the engine's MCP endpoint. Every tool call is logged with its
// caller, duration and outcome.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger

	// started holds tool call start times keyed by JSON-RPC id.
	started sync.Map
}

// NewServer creates an MCP server advertising tool support only.
func NewServer(name, version string, logger *zap.Logger) *Server {
	s := &Server{logger: logger.Named("mcp")}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(s.beforeCallTool)
	hooks.AddAfterCallTool(s.afterCallTool)
	hooks.AddOnError(s.onError)

	s.mcp = server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(hooks),
	)
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer returns a stateless HTTP transport. Routing to
// /mcp is done by the caller's mux.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool adds a tool to the server.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

func (s *Server) beforeCallTool(_ context.Context, id any, _ *mcp.CallToolRequest) {
	s.started.Store(id, time.Now())
}

func (s *Server) afterCallTool(ctx context.Context, id any, req *mcp.CallToolRequest, result *mcp.CallToolResult) {
	fields := s.callFields(ctx, id, req)
	if result != nil && result.IsError {
		s.logger.Info("MCP tool call returned an error result", fields...)
		return
	}
	s.logger.Info("MCP tool call", fields...)
}

func (s *Server) onError(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
	if method != mcp.MethodToolsCall {
		return
	}
	req, ok := message.(*mcp.CallToolRequest)
	if !ok {
		return
	}
	s.logger.Warn("MCP tool call failed", append(s.callFields(ctx, id, req), zap.Error(err))...)
}

func (s *Server) callFields(ctx context.Context, id any, req *mcp.CallToolRequest) []zap.Field {
	fields := []zap.Field{zap.String("tool", req.Params.Name)}
	if v, ok := s.started.LoadAndDelete(id); ok {
		fields = append(fields, zap.Duration("duration", time.Since(v.(time.Time))))
	}
	if claims, ok := auth.GetClaims(ctx); ok {
		fields = append(fields, zap.String("user_id", claims.Subject), zap.String("role", claims.Role))
	}
	return fields
}
