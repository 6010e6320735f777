package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/session"
	"github.com/AltairaLabs/discovery-agent/internal/tools"
)

// Entries implements tools.Provider for the facade tools
func (ms *MCPServer) Entries() []tools.Entry {
	userOpt := mcp.WithString("user_id",
		mcp.Description("Caller identity; defaults to the configured default user"),
	)
	return []tools.Entry{
		{
			Tool: mcp.NewTool(config.FacadeCreateSession,
				mcp.WithDescription("Create a conversation session"),
				userOpt,
			),
			Handler: ms.handleCreateSession,
		},
		{
			Tool: mcp.NewTool(config.FacadeListSessions,
				mcp.WithDescription("List a user's sessions"),
				userOpt,
			),
			Handler: ms.handleListSessions,
		},
		{
			Tool: mcp.NewTool(config.FacadeGetSession,
				mcp.WithDescription("Get a session and its turn history"),
				mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to fetch")),
				userOpt,
			),
			Handler: ms.handleGetSession,
		},
		{
			Tool: mcp.NewTool(config.FacadeDeleteSession,
				mcp.WithDescription("Delete a session"),
				mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to delete")),
				userOpt,
			),
			Handler: ms.handleDeleteSession,
		},
		{
			Tool: mcp.NewTool(config.FacadeQuery,
				mcp.WithDescription("Ask the discovery agent a question. The query is routed to a specialist whose tool calls are narrated in the answer."),
				mcp.WithString("input", mcp.Description("The question; may also be a JSON document")),
				mcp.WithString("session_id", mcp.Description("Session to continue; a new one is created when omitted")),
				userOpt,
			),
			Handler: ms.handleQuery,
		},
	}
}

// registerTools adds the facade tools to the MCP server
func (ms *MCPServer) registerTools() {
	ms.toolRegistry.Wrap(func(name string, h tools.ToolHandlerFunc) tools.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ms.logger.DebugContext(ctx, "Facade tool called", "tool", name)
			return h(ctx, req)
		}
	})
	ms.toolRegistry.Apply(ms.server)
}

func (ms *MCPServer) handleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, err := ms.coord.CreateSession(ctx, req.GetString("user_id", ""))
	if err != nil {
		return sessionError(err), nil
	}
	return jsonResult(newSessionView(s))
}

func (ms *MCPServer) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := ms.coord.ListSessions(ctx, req.GetString("user_id", ""))
	if err != nil {
		return sessionError(err), nil
	}
	return jsonResult(newSummaryViews(list))
}

func (ms *MCPServer) handleGetSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s, err := ms.coord.GetSession(ctx, id, req.GetString("user_id", ""))
	if err != nil {
		return sessionError(err), nil
	}
	return jsonResult(newSessionView(s))
}

func (ms *MCPServer) handleDeleteSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := ms.coord.DeleteSession(ctx, id, req.GetString("user_id", "")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return sessionError(err), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText("deleted " + id), nil
}

func (ms *MCPServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := ms.coord.Query(ctx, queryBody(req.GetArguments()).request())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	meta, err := json.Marshal(resp.Metadata)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(resp.Answer),
			mcp.NewTextContent(string(meta)),
		},
	}, nil
}

func sessionError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(config.ErrSessionError, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
