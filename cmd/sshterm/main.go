package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AltairaLabs/sshterm-mcp/internal/config"
	"github.com/AltairaLabs/sshterm-mcp/internal/server"
	"github.com/AltairaLabs/sshterm-mcp/internal/session"
	"github.com/AltairaLabs/sshterm-mcp/internal/sshconn"
)

const (
	serverVersion = "0.1.0"

	defaultSessionMaxAge = 30 * time.Minute
	cleanupInterval      = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
	defaultHTTPPort      = "8080"
	defaultMonitorPort   = "8081"
)

var (
	version  = flag.Bool("version", false, "Print version and exit")
	debug    = flag.Bool("debug", false, "Enable debug logging")
	httpMode = flag.Bool("http", false, "Enable HTTP/SSE transport instead of stdio")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("sshterm MCP Server v" + serverVersion)
		os.Exit(0)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Read HTTP port from environment (for HTTP/SSE mode)
	httpPort := os.Getenv("HTTP_PORT")
	if httpPort == "" {
		httpPort = defaultHTTPPort
	}

	// Read monitor port from environment
	monitorPort := os.Getenv("MONITOR_PORT")
	if monitorPort == "" {
		monitorPort = defaultMonitorPort
	}

	logger.Info("Starting sshterm MCP Server",
		"version", serverVersion,
		"debug", *debug,
		"http_mode", *httpMode,
		"http_port", httpPort,
		"monitor_port", monitorPort,
	)

	// Initialize components
	sessionCfg := config.DefaultSessionConfig()
	registry := session.NewRegistry(logger)
	dialer := &sshconn.Dialer{Timeout: sessionCfg.ConnectTimeout, Logger: logger}
	auditLogger := server.NewAuditLogger(logger)

	// Configure MCP server
	cfg := server.Config{
		Name:    "sshterm-mcp",
		Version: serverVersion,
	}

	mcpServer := server.NewMCPServer(cfg, registry, dialer, sessionCfg, auditLogger, logger)

	logger.Info("MCP Server initialized",
		"name", cfg.Name,
		"version", cfg.Version,
	)

	monitor := server.NewMonitorServer(registry, logger)

	// Setup context for shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start monitor server for websocket session streams
	go func() {
		logger.Info("Starting monitor server", "port", monitorPort)
		if err := monitor.ListenAndServe(ctx, ":"+monitorPort); err != nil {
			logger.Error("Monitor server error", "error", err)
			cancel()
		}
	}()

	// Start MCP server in goroutine
	go func() {
		if *httpMode {
			logger.Info("Starting MCP server with HTTP/SSE transport", "port", httpPort)
			if err := mcpServer.ServeHTTPWithLogger(":"+httpPort, logger); err != nil {
				logger.Error("MCP server error", "error", err)
				cancel()
			}
		} else {
			logger.Info("Starting MCP server on stdio")
			if err := mcpServer.Serve(); err != nil {
				logger.Error("MCP server error", "error", err)
				cancel()
			}
		}
	}()

	// Start session cleanup goroutine
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deleted := registry.CleanupStale(defaultSessionMaxAge)
				if deleted > 0 {
					logger.Info("Cleaned up stale sessions", "count", deleted)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wait for shutdown signal
	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case <-ctx.Done():
		logger.Info("Context canceled")
	}

	logger.Info("Shutting down gracefully")
	cancel()

	// Close every live session before exiting so remote shells are not
	// left dangling behind dead TCP connections.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	registry.Shutdown(shutdownCtx)

	logger.Info("Server shutdown complete")
}
