package coordinator

import (
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
)

// This file contains server startup methods that start blocking servers.

// Serve starts the MCP server with stdio transport
func (ms *MCPServer) Serve() error {
	return server.ServeStdio(ms.server)
}

// ServeWithLogger starts the MCP server with stdio transport and custom logger
func (ms *MCPServer) ServeWithLogger(logger *slog.Logger) error {
	logger.Info("Starting MCP server with stdio transport")
	return ms.Serve()
}

// Handler returns the streamable HTTP transport, to be mounted at /mcp
func (ms *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(ms.server)
}
