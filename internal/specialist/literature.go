package specialist

import (
	"strings"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

const defaultMaxResults = 5

var literaturePrefixes = []string{
	"search pubmed for",
	"search pubmed",
	"find papers about",
	"find papers on",
	"search for",
}

// Literature searches PubMed
type Literature struct {
	Service string
}

// Term strips a leading search phrase from the query
func (l *Literature) Term(q normalize.Query) string {
	text := strings.TrimSpace(q.Text)
	lower := strings.ToLower(text)
	for _, p := range literaturePrefixes {
		if strings.HasPrefix(lower, p) {
			if rest := strings.TrimSpace(text[len(p):]); rest != "" {
				return strings.TrimRight(rest, "?!.")
			}
		}
	}
	return strings.TrimRight(text, "?!.")
}

// Plan issues one PubMed search
func (l *Literature) Plan(q normalize.Query) []types.ToolCall {
	return []types.ToolCall{{
		Service:   l.Service,
		Tool:      config.ToolSearchPubMed,
		Arguments: map[string]any{"query": l.Term(q), "max_results": defaultMaxResults},
	}}
}

// Synthesize lists the papers found
func (l *Literature) Synthesize(q normalize.Query, trace []Step) string {
	return summarize("PubMed results for "+l.Term(q), trace)
}
