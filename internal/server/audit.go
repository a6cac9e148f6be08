package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/AltairaLabs/sshterm-mcp/internal/session"
)

// AuditEntry records one tool invocation for provenance tracking.
type AuditEntry struct {
	Timestamp   time.Time
	SessionName string
	Target      string
	ToolName    string
	Command     string
	Result      *session.Result
	ErrorMsg    string
}

// AuditLogger provides structured audit logging for tool calls
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogToolCall logs a tool invocation with all relevant context
func (al *AuditLogger) LogToolCall(ctx context.Context, entry *AuditEntry) {
	al.logger.InfoContext(ctx, "tool_call",
		"session", entry.SessionName,
		"target", entry.Target,
		"tool_name", entry.ToolName,
		"command", entry.Command,
		"timestamp", entry.Timestamp,
	)
}

// LogToolResult logs a tool execution result
func (al *AuditLogger) LogToolResult(ctx context.Context, entry *AuditEntry) {
	if entry.Result != nil {
		al.logger.InfoContext(ctx, "tool_result",
			"session", entry.SessionName,
			"tool_name", entry.ToolName,
			"exit_code", entry.Result.ExitCode,
			"stdout_bytes", len(entry.Result.Stdout),
			"duration_ms", entry.Result.Duration.Milliseconds(),
		)
	} else if entry.ErrorMsg != "" {
		al.logger.ErrorContext(ctx, "tool_error",
			"session", entry.SessionName,
			"tool_name", entry.ToolName,
			"error", entry.ErrorMsg,
		)
	}
}
