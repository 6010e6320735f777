// Package gemini implements a routing decider backed by the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/AltairaLabs/discovery-agent/internal/router"
	"github.com/AltairaLabs/discovery-agent/internal/types"
)

const systemPrompt = `You route user requests for a drug discovery assistant.
Choose exactly one specialist from the list below, or request one tool call directly.
Reply with a single JSON object and nothing else:
{"specialist": "<name>", "tool_call": {"service": "<service>", "tool": "<tool>", "arguments": {}}}
Omit "tool_call" unless a single tool call fully answers the request.

Specialists:
`

// Generator produces model text for a prompt. It is satisfied by the genai
// client adapter and by test fakes.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Decider asks a Gemini model to choose a specialist
type Decider struct {
	gen Generator
}

var _ router.Decider = (*Decider)(nil)

// New creates a decider using the Gemini API
func New(ctx context.Context, apiKey, model string) (*Decider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewWithGenerator(&genaiGenerator{client: client, model: model}), nil
}

// NewWithGenerator creates a decider over an arbitrary generator
func NewWithGenerator(gen Generator) *Decider {
	return &Decider{gen: gen}
}

type reply struct {
	Specialist string          `json:"specialist"`
	ToolCall   *types.ToolCall `json:"tool_call,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Decide implements router.Decider
func (d *Decider) Decide(ctx context.Context, query string, specialists []router.Specialist) (router.Decision, error) {
	text, err := d.gen.Generate(ctx, buildSystem(specialists), query)
	if err != nil {
		return router.Decision{}, err
	}

	var r reply
	if err := json.Unmarshal([]byte(stripFence(text)), &r); err != nil {
		return router.Decision{}, fmt.Errorf("decode decision %q: %w", truncate(text, 120), err)
	}
	if r.ToolCall != nil && (r.ToolCall.Service == "" || r.ToolCall.Tool == "") {
		r.ToolCall = nil
	}
	return router.Decision{
		Specialist: r.Specialist,
		ToolCall:   r.ToolCall,
		Reason:     r.Reason,
	}, nil
}

func buildSystem(specialists []router.Specialist) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	for _, s := range specialists {
		fmt.Fprintf(&b, "- %s: %s", s.Name, s.Summary)
		if s.Service != "" {
			fmt.Fprintf(&b, " (service %q)", s.Service)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stripFence removes a markdown code fence around the JSON reply
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	temp := float32(0)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", errors.New("gemini returned empty text")
	}
	return text, nil
}
