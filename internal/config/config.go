package config

import "time"

// SessionConfig holds per-session tuning for the terminal engine
type SessionConfig struct {
	// ConnectTimeout bounds the connect handshake (dial + prompt init)
	ConnectTimeout time.Duration
	// ExecTimeout is the default command deadline
	ExecTimeout time.Duration
	// CloseDrainTimeout is how long Close waits for in-flight work
	CloseDrainTimeout time.Duration
	// MaxScanBytes is the prompt scan budget per command
	MaxScanBytes int64
	// ReadBufferSize is the channel read buffer size
	ReadBufferSize int
}

// DefaultSessionConfig returns default session configuration
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConnectTimeout:    DefaultConnectTimeout,
		ExecTimeout:       DefaultExecTimeout,
		CloseDrainTimeout: DefaultCloseDrainTimeout,
		MaxScanBytes:      DefaultMaxScanBytes,
		ReadBufferSize:    DefaultReadBufferSize,
	}
}
