package mcpserver

import (
	"encoding/json"
	"fmt"
	"log"

	"jsonjoin/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for jsonjoin.
// It exposes tools, resources, and prompts so AI agents can define and run joins.
type Server struct {
	mcp *server.MCPServer

	// Services (injected from main)
	joins    *service.JoinService
	database *service.DatabaseService
}

// Deps holds the services the MCP server delegates to.
type Deps struct {
	Joins    *service.JoinService
	Database *service.DatabaseService
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps, version string) *Server {
	s := &Server{
		joins:    deps.Joins,
		database: deps.Database,
	}

	s.mcp = server.NewMCPServer(
		"jsonjoin-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerJoinTools()
	s.registerDatabaseTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}
