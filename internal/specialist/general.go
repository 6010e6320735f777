package specialist

import (
	"fmt"
	"strings"

	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/router"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

// General answers without tools by describing what the other specialists do
type General struct {
	Specialists []router.Specialist
}

// Plan returns no calls
func (g *General) Plan(q normalize.Query) []types.ToolCall {
	return nil
}

// Synthesize returns the help text
func (g *General) Synthesize(q normalize.Query, trace []Step) string {
	var b strings.Builder
	if q.Sentinel {
		b.WriteString("I did not receive a question. ")
	}
	b.WriteString("I can help with:")
	for _, sp := range g.Specialists {
		if sp.Default {
			continue
		}
		fmt.Fprintf(&b, "\n- %s: %s", sp.Name, sp.Summary)
	}
	if len(trace) > 0 {
		b.WriteString("\n")
		b.WriteString(summarize("Requested tool call", trace))
	}
	return b.String()
}
