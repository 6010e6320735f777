// Package tools holds the domain tool implementations served by the tool hosts.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolHandlerFunc is a function that handles a tool call
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Entry pairs a tool definition with its handler
type Entry struct {
	Tool    mcp.Tool
	Handler ToolHandlerFunc
}

// Provider is implemented by each tool family
type Provider interface {
	Entries() []Entry
}

// ToolHandlerRegistry maps tool names to definitions and handlers
type ToolHandlerRegistry struct {
	entries map[string]Entry
}

// NewToolHandlerRegistry creates a registry holding the entries of providers
func NewToolHandlerRegistry(providers ...Provider) *ToolHandlerRegistry {
	r := &ToolHandlerRegistry{
		entries: make(map[string]Entry),
	}
	for _, p := range providers {
		for _, e := range p.Entries() {
			r.Register(e)
		}
	}
	return r
}

// Register adds or replaces the entry for its tool name
func (r *ToolHandlerRegistry) Register(e Entry) {
	r.entries[e.Tool.Name] = e
}

// GetHandler returns the handler function for a given tool name
func (r *ToolHandlerRegistry) GetHandler(toolName string) (ToolHandlerFunc, error) {
	e, ok := r.entries[toolName]
	if !ok {
		return nil, fmt.Errorf("no handler registered for tool: %s", toolName)
	}
	return e.Handler, nil
}

// Entries returns the registered entries sorted by tool name
func (r *ToolHandlerRegistry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool.Name < out[j].Tool.Name })
	return out
}

// Wrap replaces every handler with wrap(name, handler)
func (r *ToolHandlerRegistry) Wrap(wrap func(name string, h ToolHandlerFunc) ToolHandlerFunc) {
	for name, e := range r.entries {
		e.Handler = wrap(name, e.Handler)
		r.entries[name] = e
	}
}

// Apply adds every entry to srv
func (r *ToolHandlerRegistry) Apply(srv *server.MCPServer) {
	for _, e := range r.Entries() {
		srv.AddTool(e.Tool, server.ToolHandlerFunc(e.Handler))
	}
}
