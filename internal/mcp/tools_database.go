package mcpserver

import (
	"context"
	"fmt"

	"jsonjoin/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("create_db_connection",
		mcp.WithDescription("Store a database connection that join sides of type database can read from. The password goes to the secret store."),
		mcp.WithString("name", mcp.Description("Connection name"), mcp.Required()),
		mcp.WithString("driver", mcp.Description("sqlite, mysql, postgres or mongodb"), mcp.Required()),
		mcp.WithString("host", mcp.Description("Hostname, SQLite file path, or mongodb:// URI"), mcp.Required()),
		mcp.WithNumber("port", mcp.Description("Port (default per driver)")),
		mcp.WithString("database", mcp.Description("Database name")),
		mcp.WithString("username", mcp.Description("Username")),
		mcp.WithString("password", mcp.Description("Password")),
		mcp.WithString("sslMode", mcp.Description("SSL mode (postgres)")),
		mcp.WithString("extraJSON", mcp.Description("Driver-specific options as a JSON object")),
	), s.handleCreateDBConnection)

	s.mcp.AddTool(mcp.NewTool("list_db_connections",
		mcp.WithDescription("List all stored database connections"),
	), s.handleListDBConnections)

	s.mcp.AddTool(mcp.NewTool("test_db_connection",
		mcp.WithDescription("Check that a stored database connection is reachable"),
		mcp.WithString("connectionId", mcp.Description("Database connection ID"), mcp.Required()),
	), s.handleTestDBConnection)
}

func (s *Server) handleCreateDBConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	extra, err := jsonArg(args, "extraJSON")
	if err != nil {
		return nil, fmt.Errorf("extraJSON: %w", err)
	}
	conn, err := s.database.CreateConnection(service.CreateDBConnInput{
		Name:      req.GetString("name", ""),
		Driver:    req.GetString("driver", ""),
		Host:      req.GetString("host", ""),
		Port:      int(getFloat(args, "port", 0)),
		Database:  req.GetString("database", ""),
		Username:  req.GetString("username", ""),
		Password:  req.GetString("password", ""),
		SSLMode:   req.GetString("sslMode", ""),
		ExtraJSON: extra,
	})
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	return jsonResult(conn)
}

func (s *Server) handleListDBConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns, err := s.database.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return jsonResult(conns)
}

func (s *Server) handleTestDBConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	connID := req.GetString("connectionId", "")
	if connID == "" {
		return nil, fmt.Errorf("connectionId is required")
	}
	if err := s.database.TestConnection(ctx, connID); err != nil {
		return textResult(fmt.Sprintf("Connection %s failed: %v", connID, err)), nil
	}
	return textResult(fmt.Sprintf("Connection %s OK", connID)), nil
}
