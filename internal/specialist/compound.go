package specialist

import (
	"strings"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

// Compound looks a compound up on PubChem and optionally estimates toxicity
type Compound struct {
	Service string
}

// Plan searches for the last word of the query
func (c *Compound) Plan(q normalize.Query) []types.ToolCall {
	term := lastWord(q.Text)
	if term == "" {
		return nil
	}
	calls := []types.ToolCall{{
		Service:   c.Service,
		Tool:      config.ToolSearchPubChem,
		Arguments: map[string]any{"query": term},
	}}
	if strings.Contains(q.Lower(), "toxic") {
		calls = append(calls, types.ToolCall{
			Service:   c.Service,
			Tool:      config.ToolPredictToxicity,
			Arguments: map[string]any{"compound": term},
		})
	}
	return calls
}

// Synthesize reports the compound properties
func (c *Compound) Synthesize(q normalize.Query, trace []Step) string {
	return summarize("Compound analysis for "+lastWord(q.Text), trace)
}
