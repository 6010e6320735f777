// Package types provides shared types used across the discovery-agent codebase
package types

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ToolCall is a request to invoke one tool on one service
type ToolCall struct {
	Service   string         `json:"service"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// String renders the call as service/tool(key=value, ...) with sorted keys
func (c ToolCall) String() string {
	keys := make([]string, 0, len(c.Arguments))
	for k := range c.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatArg(c.Arguments[k])))
	}
	return fmt.Sprintf("%s/%s(%s)", c.Service, c.Tool, strings.Join(parts, ", "))
}

func formatArg(v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case nil:
		return "null"
	default:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprint(val)
	}
}

// AuditEntry represents an audit log entry for tool calls and results
type AuditEntry struct {
	SessionID  string
	UserID     string
	Service    string
	ToolName   string
	Arguments  map[string]any
	Status     string
	Attempts   int
	Duration   time.Duration
	IncidentID string
	ErrorMsg   string
}

// AuditLogger provides audit logging operations
type AuditLogger interface {
	LogToolCall(ctx context.Context, entry *AuditEntry)
	LogToolResult(ctx context.Context, entry *AuditEntry)
}

type auditKey struct{}

// AuditScope identifies the session and user a tool call is made for
type AuditScope struct {
	SessionID string
	UserID    string
}

// WithAuditScope attaches the caller's session and user to ctx for audit records
func WithAuditScope(ctx context.Context, scope AuditScope) context.Context {
	return context.WithValue(ctx, auditKey{}, scope)
}

// AuditScopeFrom returns the scope attached by WithAuditScope, if any
func AuditScopeFrom(ctx context.Context) AuditScope {
	scope, _ := ctx.Value(auditKey{}).(AuditScope)
	return scope
}
