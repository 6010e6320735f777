// Package web provides the web search tool used for infrastructure lookups
package web

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/tools"
)

const (
	defaultMaxResults = 3
	maxResultsLimit   = 10
)

// Handler serves the web search tool
type Handler struct {
	search *SerpAPIClient
}

var _ tools.Provider = (*Handler)(nil)

// NewHandler creates a web search handler
func NewHandler(search *SerpAPIClient) *Handler {
	return &Handler{search: search}
}

// Entries implements tools.Provider
func (h *Handler) Entries() []tools.Entry {
	return []tools.Entry{
		{
			Tool: mcp.NewTool(config.ToolSearchWeb,
				mcp.WithDescription("Searches the web and returns the top result titles and snippets"),
				mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
				mcp.WithNumber("max_results", mcp.Description("Maximum results to return (default 3, max 10)")),
			),
			Handler: h.Search,
		},
	}
}

// Search lists web results as "- title: snippet" lines
func (h *Handler) Search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query cannot be empty"), nil
	}
	max := request.GetInt("max_results", defaultMaxResults)
	if max < 1 {
		max = defaultMaxResults
	}
	if max > maxResultsLimit {
		max = maxResultsLimit
	}

	results, err := h.search.Search(ctx, query, max)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No results found."), nil
	}

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("- %s: %s", r.Title, r.Snippet))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
