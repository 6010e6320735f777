package router

import (
	"context"
	"strings"
	"time"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
)

// Decider is an external reasoning collaborator. Repeated calls with the same
// input may return different choices.
type Decider interface {
	Decide(ctx context.Context, query string, specialists []Specialist) (Decision, error)
}

// DeciderFunc adapts a function to Decider
type DeciderFunc func(ctx context.Context, query string, specialists []Specialist) (Decision, error)

// Decide calls f
func (f DeciderFunc) Decide(ctx context.Context, query string, specialists []Specialist) (Decision, error) {
	return f(ctx, query, specialists)
}

// DelegatedStrategy asks a Decider. A failed or empty decision falls back to
// the default specialist; the returned names are still untrusted and must be
// checked against the live specialist set and registry by the caller.
type DelegatedStrategy struct {
	Decider Decider
	Timeout time.Duration
}

// Name returns the strategy name
func (d *DelegatedStrategy) Name() string {
	return config.StrategyDelegated
}

// Route forwards the query and specialist summaries to the decider
func (d *DelegatedStrategy) Route(ctx context.Context, q normalize.Query, specialists []Specialist) (Decision, error) {
	def, err := DefaultOf(specialists)
	if err != nil {
		return Decision{}, err
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	dec, err := d.Decider.Decide(ctx, q.Text, specialists)
	if err != nil {
		return Decision{
			Specialist: def.Name,
			Strategy:   config.StrategyDelegated,
			Fallback:   true,
			Reason:     "decider failed: " + err.Error(),
		}, nil
	}

	dec.Specialist = strings.TrimSpace(dec.Specialist)
	dec.Strategy = config.StrategyDelegated
	if dec.Specialist == "" && dec.ToolCall == nil {
		dec.Specialist = def.Name
		dec.Fallback = true
		dec.Reason = "decider returned no choice"
	}
	return dec, nil
}
