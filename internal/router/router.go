// Package router picks the specialist that handles a query.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

// ErrNoDefault is returned when a specialist set has no default entry
var ErrNoDefault = errors.New("no default specialist")

// Specialist is a named capability unit a turn can be delegated to
type Specialist struct {
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Service string   `json:"service,omitempty"`
	Signals []string `json:"-"`
	Default bool     `json:"-"`
}

// FromConfig converts configured specialists, preserving order
func FromConfig(cfgs []config.SpecialistConfig) []Specialist {
	out := make([]Specialist, 0, len(cfgs))
	for _, c := range cfgs {
		signals := make([]string, 0, len(c.Signals))
		for _, s := range c.Signals {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				signals = append(signals, s)
			}
		}
		out = append(out, Specialist{
			Name:    c.Name,
			Summary: c.Summary,
			Service: c.Service,
			Signals: signals,
			Default: c.Default,
		})
	}
	return out
}

// DefaultOf returns the default specialist of set
func DefaultOf(set []Specialist) (Specialist, error) {
	for _, s := range set {
		if s.Default {
			return s, nil
		}
	}
	return Specialist{}, ErrNoDefault
}

// Lookup finds a specialist by name
func Lookup(set []Specialist, name string) (Specialist, bool) {
	for _, s := range set {
		if s.Name == name {
			return s, true
		}
	}
	return Specialist{}, false
}

// Decision is the outcome of routing one query
type Decision struct {
	Specialist string
	// ToolCall is set when a delegated decider asks for one tool call directly
	ToolCall *types.ToolCall
	Strategy string
	// Fallback is true when the default specialist was substituted
	Fallback bool
	Reason   string
}

// Strategy routes a normalized query to a specialist
type Strategy interface {
	Name() string
	Route(ctx context.Context, q normalize.Query, specialists []Specialist) (Decision, error)
}

// New builds the configured strategy. A delegated strategy needs a decider.
func New(cfg config.RoutingConfig, specialists []Specialist, decider Decider) (Strategy, error) {
	switch cfg.Strategy {
	case "", config.StrategyKeyword:
		return NewKeywordStrategy(specialists), nil
	case config.StrategyDelegated:
		if decider == nil {
			return nil, fmt.Errorf("%s routing requires a decider", config.StrategyDelegated)
		}
		return &DelegatedStrategy{Decider: decider, Timeout: cfg.DecisionTimeout}, nil
	default:
		return nil, fmt.Errorf("unknown routing strategy %q", cfg.Strategy)
	}
}
