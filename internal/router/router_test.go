package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

func defaultSpecialists() []Specialist {
	return FromConfig(config.DefaultSpecialists())
}

func TestKeywordRouting(t *testing.T) {
	specialists := defaultSpecialists()
	ks := NewKeywordStrategy(specialists)

	tests := []struct {
		query    string
		expected string
		fallback bool
	}{
		{"Get structure of aspirin", config.SpecialistCompound, false},
		{"search pubmed for cancer", config.SpecialistLiterature, false},
		{"deploy hpc cluster named docking-01 with 4 nodes", config.SpecialistInfrastructure, false},
		{"What is the molecular WEIGHT of caffeine?", config.SpecialistCompound, false},
		{"check status of job 42", config.SpecialistInfrastructure, false},
		{"submit a job to cluster alpha", config.SpecialistInfrastructure, false},
		{"list my clusters", config.SpecialistInfrastructure, false},
		{"summarize research on VMAT2 inhibitors", config.SpecialistLiterature, false},
		{"for instance, what is the formula of caffeine", config.SpecialistCompound, false},
		{"what job does hemoglobin do in the body", config.SpecialistGeneral, true},
		{"papers on infrastructure of cell membranes", config.SpecialistLiterature, false},
		{"is benzene toxic", config.SpecialistCompound, false},
		{"hello, how are you?", config.SpecialistGeneral, true},
		{"NO_INPUT_FOUND", config.SpecialistGeneral, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			d, err := ks.Route(context.Background(), normalize.Normalize(tt.query), specialists)
			if err != nil {
				t.Fatalf("Route failed: %v", err)
			}
			if d.Specialist != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, d.Specialist)
			}
			if d.Fallback != tt.fallback {
				t.Errorf("Expected fallback %v, got %v", tt.fallback, d.Fallback)
			}
			if d.Strategy != config.StrategyKeyword {
				t.Errorf("Expected keyword strategy, got %s", d.Strategy)
			}
		})
	}
}

func TestContainsSignalWordStart(t *testing.T) {
	tests := []struct {
		signal string
		text   string
		want   bool
	}{
		{"cluster", "deploy two clusters", true},
		{"cluster", "subcluster analysis", false},
		{"structure", "gcp infrastructure", false},
		{"toxic", "toxicity of aspirin", true},
		{"status of job", "check status of job 7", true},
		{"status of job", "check status of jobs", true},
		{"c++", "c++ bindings", true},
	}

	for _, tt := range tests {
		t.Run(tt.signal+"/"+tt.text, func(t *testing.T) {
			if got := containsSignal(tt.signal)(tt.text); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestKeywordFirstMatchWins(t *testing.T) {
	specialists := defaultSpecialists()
	ks := NewKeywordStrategy(specialists)

	// "cluster" (infrastructure) precedes "compound" in the table
	d, _ := ks.Route(context.Background(), normalize.Normalize("cluster the compound results"), specialists)
	if d.Specialist != config.SpecialistInfrastructure {
		t.Errorf("Expected first rule to win, got %s", d.Specialist)
	}

	for i := 0; i < 10; i++ {
		again, _ := ks.Route(context.Background(), normalize.Normalize("cluster the compound results"), specialists)
		if again != d {
			t.Fatalf("Expected deterministic routing, got %+v then %+v", d, again)
		}
	}
}

func TestKeywordCustomRule(t *testing.T) {
	specialists := defaultSpecialists()
	ks := &KeywordStrategy{Rules: []Rule{
		{Name: "starts-with-lit", Match: func(s string) bool { return len(s) > 3 && s[:3] == "lit" }, Target: config.SpecialistLiterature},
		{Name: "unknown-target", Match: func(string) bool { return true }, Target: "missing"},
	}}

	d, _ := ks.Route(context.Background(), normalize.Normalize("Literally anything"), specialists)
	if d.Specialist != config.SpecialistLiterature {
		t.Errorf("Expected custom rule match, got %s", d.Specialist)
	}

	// Rules pointing outside the specialist set are skipped
	d, _ = ks.Route(context.Background(), normalize.Normalize("other"), specialists)
	if d.Specialist != config.SpecialistGeneral || !d.Fallback {
		t.Errorf("Expected fallback to general, got %+v", d)
	}
}

func TestKeywordNoDefault(t *testing.T) {
	specialists := []Specialist{{Name: "only", Signals: []string{"x"}}}
	_, err := NewKeywordStrategy(specialists).Route(context.Background(), normalize.Normalize("nothing"), specialists)
	if !errors.Is(err, ErrNoDefault) {
		t.Errorf("Expected ErrNoDefault, got %v", err)
	}
}

func TestDelegatedStrategy(t *testing.T) {
	specialists := defaultSpecialists()

	tests := []struct {
		name     string
		decider  DeciderFunc
		expected string
		fallback bool
		hasCall  bool
	}{
		{
			name: "chosen specialist",
			decider: func(ctx context.Context, q string, s []Specialist) (Decision, error) {
				return Decision{Specialist: " literature_researcher "}, nil
			},
			expected: config.SpecialistLiterature,
		},
		{
			name: "direct tool call",
			decider: func(ctx context.Context, q string, s []Specialist) (Decision, error) {
				return Decision{ToolCall: &types.ToolCall{Service: "chem", Tool: "search_pubchem"}}, nil
			},
			hasCall: true,
		},
		{
			name: "decider error",
			decider: func(ctx context.Context, q string, s []Specialist) (Decision, error) {
				return Decision{}, errors.New("quota exceeded")
			},
			expected: config.SpecialistGeneral,
			fallback: true,
		},
		{
			name: "empty decision",
			decider: func(ctx context.Context, q string, s []Specialist) (Decision, error) {
				return Decision{}, nil
			},
			expected: config.SpecialistGeneral,
			fallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := &DelegatedStrategy{Decider: tt.decider}
			d, err := ds.Route(context.Background(), normalize.Normalize("anything"), specialists)
			if err != nil {
				t.Fatalf("Route failed: %v", err)
			}
			if d.Specialist != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, d.Specialist)
			}
			if d.Fallback != tt.fallback {
				t.Errorf("Expected fallback %v, got %v", tt.fallback, d.Fallback)
			}
			if (d.ToolCall != nil) != tt.hasCall {
				t.Errorf("Expected tool call %v, got %+v", tt.hasCall, d.ToolCall)
			}
			if d.Strategy != config.StrategyDelegated {
				t.Errorf("Expected delegated strategy, got %s", d.Strategy)
			}
		})
	}
}

func TestDelegatedTimeout(t *testing.T) {
	specialists := defaultSpecialists()
	ds := &DelegatedStrategy{
		Timeout: 10 * time.Millisecond,
		Decider: DeciderFunc(func(ctx context.Context, q string, s []Specialist) (Decision, error) {
			<-ctx.Done()
			return Decision{}, ctx.Err()
		}),
	}

	d, err := ds.Route(context.Background(), normalize.Normalize("slow"), specialists)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if d.Specialist != config.SpecialistGeneral || !d.Fallback {
		t.Errorf("Expected timeout to fall back to general, got %+v", d)
	}
}

func TestNew(t *testing.T) {
	specialists := defaultSpecialists()

	s, err := New(config.RoutingConfig{Strategy: config.StrategyKeyword}, specialists, nil)
	if err != nil || s.Name() != config.StrategyKeyword {
		t.Errorf("Expected keyword strategy, got %v, %v", s, err)
	}

	if _, err := New(config.RoutingConfig{Strategy: config.StrategyDelegated}, specialists, nil); err == nil {
		t.Error("Expected error for delegated strategy without decider")
	}

	noop := DeciderFunc(func(ctx context.Context, q string, s []Specialist) (Decision, error) { return Decision{}, nil })
	s, err = New(config.RoutingConfig{Strategy: config.StrategyDelegated}, specialists, noop)
	if err != nil || s.Name() != config.StrategyDelegated {
		t.Errorf("Expected delegated strategy, got %v, %v", s, err)
	}

	if _, err := New(config.RoutingConfig{Strategy: "random"}, specialists, nil); err == nil {
		t.Error("Expected error for unknown strategy")
	}
}

func TestFromConfigLowercasesSignals(t *testing.T) {
	got := FromConfig([]config.SpecialistConfig{{Name: "a", Signals: []string{" PubMed ", ""}}})
	if len(got[0].Signals) != 1 || got[0].Signals[0] != "pubmed" {
		t.Errorf("Expected [pubmed], got %v", got[0].Signals)
	}
}
