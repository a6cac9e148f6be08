package config

import "time"

// Default timing configurations used throughout the server
const (
	// DefaultConnectTimeout bounds SSH dialing plus the prompt
	// initialization handshake
	DefaultConnectTimeout = 30 * time.Second

	// DefaultExecTimeout is the default deadline for a single command
	// when the caller does not supply one
	DefaultExecTimeout = 30 * time.Second

	// DefaultCloseDrainTimeout is how long session shutdown waits for an
	// in-flight command before forcing the channel closed
	DefaultCloseDrainTimeout = 5 * time.Second

	// DefaultMaxScanBytes is the prompt scan budget: if this many bytes
	// arrive after a submission without a prompt boundary, the command is
	// treated as timed out
	DefaultMaxScanBytes = 4 * 1024 * 1024

	// DefaultReadBufferSize is the per-session channel read buffer size
	DefaultReadBufferSize = 4096

	// DefaultObserverDepth is the channel depth granted to each observer
	// beyond its replay preload
	DefaultObserverDepth = 256
)
