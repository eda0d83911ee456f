// Package server provides MCP server integration for x402 payment gating. Payable
// tools are priced like HTTP routes and settled only after a successful result.
package server

import (
	"fmt"
	"net/http"
	"sync"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/x402cards/paygate"
)

// X402Server wraps an MCP server and adds x402 payment protection.
type X402Server struct {
	mcpServer *mcpserver.MCPServer
	config    *Config

	mu    sync.RWMutex
	tools map[string]x402.PaymentRequirement
}

// NewX402Server creates an MCP server with x402 payment support.
func NewX402Server(name, version string, config *Config, opts ...mcpserver.ServerOption) *X402Server {
	if config == nil {
		config = &Config{}
	}
	return &X402Server{
		mcpServer: mcpserver.NewMCPServer(name, version, opts...),
		config:    config,
		tools:     make(map[string]x402.PaymentRequirement),
	}
}

// AddTool adds a free tool.
func (s *X402Server) AddTool(tool mcpproto.Tool, handler mcpserver.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
}

// AddPayableTool adds a tool priced by route. The requirement is bound to
// ToolResource(tool.Name) unless route.Resource says otherwise, and is built once
// here so a bad configuration fails at registration.
func (s *X402Server) AddPayableTool(tool mcpproto.Tool, handler mcpserver.ToolHandlerFunc, route x402.RouteConfig) error {
	if s.config.Facilitator == nil {
		return fmt.Errorf("payable tool %s: %w: facilitator is required", tool.Name, x402.ErrInvalidConfiguration)
	}
	requirement, err := x402.BuildRequirement(route, x402.RequestInfo{Scheme: "mcp", Host: "tools", Path: "/" + tool.Name})
	if err != nil {
		return fmt.Errorf("payable tool %s: %w", tool.Name, err)
	}

	s.mu.Lock()
	s.tools[tool.Name] = requirement
	s.mu.Unlock()

	s.mcpServer.AddTool(tool, handler)
	return nil
}

// Requirement returns the payment requirement of a payable tool.
func (s *X402Server) Requirement(toolName string) (x402.PaymentRequirement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.tools[toolName]
	return req, ok
}

// Handler returns the streamable HTTP transport wrapped with x402 payment handling.
func (s *X402Server) Handler(opts ...mcpserver.StreamableHTTPOption) http.Handler {
	return NewX402Handler(mcpserver.NewStreamableHTTPServer(s.mcpServer, opts...), s.Requirement, s.config)
}

// MCPServer returns the underlying MCP server.
func (s *X402Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ToolResource is the resource URL a tool's payments are bound to.
func ToolResource(toolName string) string {
	return x402.RequestInfo{Scheme: "mcp", Host: "tools", Path: "/" + toolName}.URL()
}
