// Package literature provides the PubMed search tool
package literature

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/tools"
)

const (
	defaultMaxResults = 5
	maxResultsLimit   = 20
)

// Handler serves the literature tools
type Handler struct {
	pubmed *PubMedClient
}

var _ tools.Provider = (*Handler)(nil)

// NewHandler creates a literature handler
func NewHandler(pubmed *PubMedClient) *Handler {
	return &Handler{pubmed: pubmed}
}

// Entries implements tools.Provider
func (h *Handler) Entries() []tools.Entry {
	return []tools.Entry{
		{
			Tool: mcp.NewTool(config.ToolSearchPubMed,
				mcp.WithDescription("Searches PubMed and returns matching articles"),
				mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
				mcp.WithNumber("max_results", mcp.Description("Maximum articles to return (default 5, max 20)")),
			),
			Handler: h.Search,
		},
	}
}

// Search lists PubMed articles for a query
func (h *Handler) Search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	term, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	term = strings.TrimSpace(term)
	max := request.GetInt("max_results", defaultMaxResults)
	if max < 1 {
		max = defaultMaxResults
	}
	if max > maxResultsLimit {
		max = maxResultsLimit
	}

	articles, total, err := h.pubmed.Search(ctx, term, max)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(articles) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No PubMed articles found for %q.", term)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d articles for %q (showing %d):", total, term, len(articles))
	for i, a := range articles {
		fmt.Fprintf(&b, "\n%d. %s", i+1, a.Title)
		if len(a.Authors) > 0 {
			authors := a.Authors[0]
			if len(a.Authors) > 1 {
				authors += " et al."
			}
			fmt.Fprintf(&b, " %s.", authors)
		}
		fmt.Fprintf(&b, " %s %s. PMID %s", a.Journal, a.PubDate, a.PMID)
	}
	return mcp.NewToolResultText(b.String()), nil
}
