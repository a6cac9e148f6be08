// Package server exposes the session registry as an MCP tool surface plus
// a websocket monitor for live terminal streams.
package server

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/sshterm-mcp/internal/config"
	"github.com/AltairaLabs/sshterm-mcp/internal/session"
	"github.com/AltairaLabs/sshterm-mcp/internal/sshconn"
)

const (
	// Tool names
	toolConnect    = "ssh_connect"
	toolExec       = "ssh_exec"
	toolDisconnect = "ssh_disconnect"
	toolSessions   = "list_sessions"
	toolHistory    = "get_history"
)

// ChannelDialer opens the remote shell channel behind a new session.
type ChannelDialer interface {
	Open(ctx context.Context, target sshconn.Target) (session.RemoteChannel, error)
}

// MCPServer wraps the mcp-go server with our business logic
type MCPServer struct {
	server      *server.MCPServer
	registry    *session.Registry
	dialer      ChannelDialer
	sessionCfg  config.SessionConfig
	auditLogger *AuditLogger
	logger      *slog.Logger
}

// Config holds configuration for the MCP server
type Config struct {
	Name    string
	Version string
}

// NewMCPServer creates and configures a new MCP server
func NewMCPServer(cfg Config, registry *session.Registry, dialer ChannelDialer, sessionCfg config.SessionConfig, audit *AuditLogger, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	// Create the mcp-go server
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	ms := &MCPServer{
		server:      mcpServer,
		registry:    registry,
		dialer:      dialer,
		sessionCfg:  sessionCfg,
		auditLogger: audit,
		logger:      logger,
	}

	// Register tools
	ms.registerTools()

	return ms
}

// registerTools registers all MCP tools with handlers
func (ms *MCPServer) registerTools() {
	// ssh_connect - open a named session to a remote host
	connectTool := mcp.NewTool(toolConnect,
		mcp.WithDescription("Open a named SSH session with a persistent interactive shell"),
		mcp.WithString("session_name",
			mcp.Required(),
			mcp.Description("Unique name for the session"),
		),
		mcp.WithString("host",
			mcp.Required(),
			mcp.Description("Remote host to connect to"),
		),
		mcp.WithNumber("port",
			mcp.Description("SSH port (default 22)"),
		),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("Login user"),
		),
		mcp.WithString("password",
			mcp.Description("Password for password authentication"),
		),
		mcp.WithString("private_key",
			mcp.Description("PEM-encoded private key for key authentication"),
		),
		mcp.WithString("key_path",
			mcp.Description("Path to a private key file for key authentication"),
		),
	)
	ms.server.AddTool(connectTool, ms.handleConnect)

	// ssh_exec - run one command in an existing session
	execTool := mcp.NewTool(toolExec,
		mcp.WithDescription("Execute a command in an existing session and capture its output and exit code"),
		mcp.WithString("session_name",
			mcp.Required(),
			mcp.Description("Session to execute in"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Single-line shell command to run"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Per-command timeout in milliseconds (default 30000)"),
		),
	)
	ms.server.AddTool(execTool, ms.handleExec)

	// ssh_disconnect - close a session and remove it from the registry
	disconnectTool := mcp.NewTool(toolDisconnect,
		mcp.WithDescription("Close an SSH session"),
		mcp.WithString("session_name",
			mcp.Required(),
			mcp.Description("Session to close"),
		),
	)
	ms.server.AddTool(disconnectTool, ms.handleDisconnect)

	// list_sessions - snapshot of all registered sessions
	sessionsTool := mcp.NewTool(toolSessions,
		mcp.WithDescription("List all sessions with their state"),
	)
	ms.server.AddTool(sessionsTool, ms.handleSessions)

	// get_history - byte-accurate transcript of one session
	historyTool := mcp.NewTool(toolHistory,
		mcp.WithDescription("Return the full terminal transcript of a session"),
		mcp.WithString("session_name",
			mcp.Required(),
			mcp.Description("Session whose history to return"),
		),
	)
	ms.server.AddTool(historyTool, ms.handleHistory)
}
