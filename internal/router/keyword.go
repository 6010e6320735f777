package router

import (
	"context"
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
	"github.com/AltairaLabs/discovery-agent/internal/normalize"
)

// Rule routes to Target when Match accepts the lowercased query text
type Rule struct {
	Name   string
	Match  func(text string) bool
	Target string
}

// KeywordStrategy evaluates an ordered rule table; the first match wins and
// no match routes to the default specialist
type KeywordStrategy struct {
	Rules []Rule
}

// NewKeywordStrategy builds one rule per signal, in specialist order
func NewKeywordStrategy(specialists []Specialist) *KeywordStrategy {
	ks := &KeywordStrategy{}
	for _, sp := range specialists {
		for _, signal := range sp.Signals {
			ks.Rules = append(ks.Rules, Rule{
				Name:   signal,
				Match:  containsSignal(signal),
				Target: sp.Name,
			})
		}
	}
	return ks
}

// containsSignal matches signal at the start of a word, so "cluster" matches
// "clusters" but "structure" does not match "infrastructure"
func containsSignal(signal string) func(string) bool {
	pattern := regexp.QuoteMeta(signal)
	if r, _ := utf8.DecodeRuneInString(signal); r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
		pattern = `\b` + pattern
	}
	re := regexp.MustCompile(pattern)
	return re.MatchString
}

// Name returns the strategy name
func (k *KeywordStrategy) Name() string {
	return config.StrategyKeyword
}

// Route returns the target of the first matching rule
func (k *KeywordStrategy) Route(ctx context.Context, q normalize.Query, specialists []Specialist) (Decision, error) {
	text := q.Lower()
	for _, rule := range k.Rules {
		if !rule.Match(text) {
			continue
		}
		if _, ok := Lookup(specialists, rule.Target); !ok {
			continue
		}
		return Decision{
			Specialist: rule.Target,
			Strategy:   config.StrategyKeyword,
			Reason:     "matched " + rule.Name,
		}, nil
	}

	def, err := DefaultOf(specialists)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Specialist: def.Name,
		Strategy:   config.StrategyKeyword,
		Fallback:   true,
		Reason:     "no rule matched",
	}, nil
}
