package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/sshterm-mcp/internal/session"
	"github.com/AltairaLabs/sshterm-mcp/internal/sshconn"
)

// execResult is the ssh_exec response payload.
type execResult struct {
	Stdout     string `json:"stdout"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// handleConnect implements the ssh_connect tool
func (ms *MCPServer) handleConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("session_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := session.ValidateName(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	host, err := request.RequireString("host")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	user, err := request.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target := sshconn.Target{
		Host:           host,
		Port:           request.GetInt("port", 0),
		User:           user,
		Password:       request.GetString("password", ""),
		PrivateKeyPEM:  request.GetString("private_key", ""),
		PrivateKeyPath: request.GetString("key_path", ""),
	}

	// Fail fast on a taken name before paying for the dial.
	if _, ok := ms.registry.Get(name); ok {
		return mcp.NewToolResultError(fmt.Sprintf("session %q already exists", name)), nil
	}

	ms.auditLogger.LogToolCall(ctx, &AuditEntry{
		Timestamp:   time.Now(),
		SessionName: name,
		Target:      target.String(),
		ToolName:    toolConnect,
	})

	ch, err := ms.dialer.Open(ctx, target)
	if err != nil {
		ms.auditLogger.LogToolResult(ctx, &AuditEntry{
			SessionName: name, ToolName: toolConnect, ErrorMsg: err.Error(),
		})
		return mcp.NewToolResultError(fmt.Sprintf("connect failed: %v", err)), nil
	}
	sess, err := session.Connect(ctx, name, target.String(), ch, ms.sessionCfg, ms.logger)
	if err != nil {
		ms.auditLogger.LogToolResult(ctx, &AuditEntry{
			SessionName: name, ToolName: toolConnect, ErrorMsg: err.Error(),
		})
		return mcp.NewToolResultError(fmt.Sprintf("connect failed: %v", err)), nil
	}
	if err := ms.registry.Add(sess); err != nil {
		_ = sess.Close(ctx)
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := json.Marshal(sess.Status())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// handleExec implements the ssh_exec tool
func (ms *MCPServer) handleExec(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("session_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	command, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	timeout := time.Duration(request.GetInt("timeout_ms", 0)) * time.Millisecond

	sess, ok := ms.registry.Get(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", name)), nil
	}

	ms.auditLogger.LogToolCall(ctx, &AuditEntry{
		Timestamp:   time.Now(),
		SessionName: name,
		ToolName:    toolExec,
		Command:     command,
	})

	res, err := sess.Submit(ctx, command, timeout)
	if err != nil {
		ms.auditLogger.LogToolResult(ctx, &AuditEntry{
			SessionName: name, ToolName: toolExec, ErrorMsg: err.Error(),
		})
		switch {
		case errors.Is(err, session.ErrBusy):
			return mcp.NewToolResultError(fmt.Sprintf("session %q is busy with another command", name)), nil
		case errors.Is(err, session.ErrTimeout):
			return mcp.NewToolResultError(fmt.Sprintf("command timed out after %s; the session remains usable", timeoutOrDefault(timeout, ms))), nil
		default:
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	ms.auditLogger.LogToolResult(ctx, &AuditEntry{
		SessionName: name, ToolName: toolExec, Result: res,
	})

	out, err := json.Marshal(execResult{
		Stdout:     res.Stdout,
		ExitCode:   res.ExitCode,
		DurationMS: res.Duration.Milliseconds(),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func timeoutOrDefault(timeout time.Duration, ms *MCPServer) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return ms.sessionCfg.ExecTimeout
}

// handleDisconnect implements the ssh_disconnect tool
func (ms *MCPServer) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("session_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ms.auditLogger.LogToolCall(ctx, &AuditEntry{
		Timestamp:   time.Now(),
		SessionName: name,
		ToolName:    toolDisconnect,
	})

	if err := ms.registry.Remove(ctx, name); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("session %q not found", name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("session %q disconnected", name)), nil
}

// handleSessions implements the list_sessions tool
func (ms *MCPServer) handleSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := json.Marshal(ms.registry.List())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// handleHistory implements the get_history tool
func (ms *MCPServer) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("session_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, ok := ms.registry.Get(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", name)), nil
	}
	return mcp.NewToolResultText(string(sess.History().Bytes())), nil
}
