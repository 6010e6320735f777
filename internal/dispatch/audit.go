package dispatch

import (
	"context"
	"log/slog"

	"github.com/AltairaLabs/discovery-agent/internal/types"
)

// AuditLogger handles audit logging for tool calls
type AuditLogger struct {
	logger *slog.Logger
}

var _ types.AuditLogger = (*AuditLogger)(nil)

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogToolCall logs a tool invocation with all relevant context
func (al *AuditLogger) LogToolCall(ctx context.Context, entry *types.AuditEntry) {
	al.logger.InfoContext(ctx, "tool_call",
		"session_id", entry.SessionID,
		"user_id", entry.UserID,
		"service", entry.Service,
		"tool_name", entry.ToolName,
		"arguments", entry.Arguments,
	)
}

// LogToolResult logs a tool execution result
func (al *AuditLogger) LogToolResult(ctx context.Context, entry *types.AuditEntry) {
	if entry.ErrorMsg == "" {
		al.logger.InfoContext(ctx, "tool_result",
			"session_id", entry.SessionID,
			"service", entry.Service,
			"tool_name", entry.ToolName,
			"status", entry.Status,
			"attempts", entry.Attempts,
			"duration_ms", entry.Duration.Milliseconds(),
		)
		return
	}
	al.logger.ErrorContext(ctx, "tool_error",
		"session_id", entry.SessionID,
		"service", entry.Service,
		"tool_name", entry.ToolName,
		"status", entry.Status,
		"attempts", entry.Attempts,
		"incident_id", entry.IncidentID,
		"error", entry.ErrorMsg,
	)
}
