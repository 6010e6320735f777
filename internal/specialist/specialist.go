// Package specialist turns a routed query into tool calls and an answer.
package specialist

import (
	"fmt"
	"strings"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/dispatch"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/router"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

// Step is one dispatched call and its outcome
type Step struct {
	Call   types.ToolCall
	Result dispatch.Result
}

// Planner decides which tools a specialist calls and how it answers.
// Plan must be deterministic for a given query.
type Planner interface {
	Plan(q normalize.Query) []types.ToolCall
	Synthesize(q normalize.Query, trace []Step) string
}

// Defaults returns the built-in planners keyed by specialist name
func Defaults(specialists []router.Specialist) map[string]Planner {
	return map[string]Planner{
		config.SpecialistInfrastructure: &Infrastructure{Service: serviceOf(specialists, config.SpecialistInfrastructure, config.ServiceHPC)},
		config.SpecialistCompound:       &Compound{Service: serviceOf(specialists, config.SpecialistCompound, config.ServiceChem)},
		config.SpecialistLiterature:     &Literature{Service: serviceOf(specialists, config.SpecialistLiterature, config.ServiceLiterature)},
		config.SpecialistGeneral:        &General{Specialists: specialists},
	}
}

func serviceOf(specialists []router.Specialist, name, fallback string) string {
	if sp, ok := router.Lookup(specialists, name); ok && sp.Service != "" {
		return sp.Service
	}
	return fallback
}

// summarize joins successful payloads and notes failures. It returns an
// answer even when every call failed.
func summarize(subject string, trace []Step) string {
	if len(trace) == 0 {
		return subject + ": nothing to do."
	}

	var ok []string
	failed := 0
	for _, s := range trace {
		if s.Result.OK() {
			ok = append(ok, strings.TrimSpace(s.Result.Payload))
		} else {
			failed++
		}
	}

	switch {
	case len(ok) == 0:
		return fmt.Sprintf("%s: no tool call succeeded. See the steps above for details.", subject)
	case failed > 0:
		return fmt.Sprintf("%s (%d of %d tool calls failed):\n%s", subject, failed, len(trace), strings.Join(ok, "\n"))
	default:
		return fmt.Sprintf("%s:\n%s", subject, strings.Join(ok, "\n"))
	}
}

// lastWord returns the final word of text with trailing punctuation removed
func lastWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], "?!.,;:\"'")
}
