package coordinator

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/discovery-agent/internal/tools"
)

// MCPServer exposes the coordinator as MCP tools
type MCPServer struct {
	server       *server.MCPServer
	coord        *Coordinator
	toolRegistry *tools.ToolHandlerRegistry
	logger       *slog.Logger
}

// Config holds configuration for the MCP server
type Config struct {
	Name    string
	Version string
}

// NewMCPServer creates the facade server over coord
func NewMCPServer(cfg Config, coord *Coordinator, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	ms := &MCPServer{
		server: mcpServer,
		coord:  coord,
		logger: logger,
	}
	ms.toolRegistry = tools.NewToolHandlerRegistry(ms)
	ms.registerTools()
	return ms
}

// Server returns the underlying mcp-go server for serving
func (ms *MCPServer) Server() *server.MCPServer {
	return ms.server
}
