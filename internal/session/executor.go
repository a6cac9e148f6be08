package session

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/sshterm-mcp/internal/prompt"
)

// commandState tracks a pending command through its lifecycle
type commandState string

const (
	commandSent           commandState = "sent"
	commandAwaitingPrompt commandState = "awaiting_prompt"
	commandCompleted      commandState = "completed"
	commandTimedOut       commandState = "timed_out"
)

// Result is the outcome of one executed command. Stdout is the raw byte
// range between the echoed command line and the prompt that follows the
// command's output, line terminators included as the remote shell emitted
// them.
type Result struct {
	Stdout   string
	ExitCode int
	Duration time.Duration
}

// pendingCommand is the single in-flight command slot of a session.
type pendingCommand struct {
	command   string
	nonce     string
	state     commandState
	submitted time.Time
	startRaw  int64 // stream offset at submission
	capture   bytes.Buffer
	bounds    []prompt.Boundary

	done   chan struct{}
	result *Result
	err    error
}

// Submit writes the command to the remote channel and resolves when the
// prompt reappears after the command's sentinel status query. Exactly one
// command may be in flight per session: a concurrent submit fails with
// ErrBusy and leaves the in-flight command unaffected. On timeout the lock
// is released and the channel stays open; the remote command may still
// finish on its own.
func (s *Session) Submit(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	if strings.ContainsAny(command, "\r\n") {
		return nil, fmt.Errorf("command must be a single line")
	}
	if timeout <= 0 {
		timeout = s.cfg.ExecTimeout
	}

	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateExecuting:
		s.mu.Unlock()
		return nil, ErrBusy
	case StateConnecting:
		s.mu.Unlock()
		return nil, fmt.Errorf("session not ready: %s", StateConnecting)
	default:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	p := &pendingCommand{
		command:   command,
		nonce:     "xc" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		state:     commandSent,
		submitted: time.Now(),
		startRaw:  s.matcher.Consumed(),
		done:      make(chan struct{}),
	}
	s.pending = p
	s.state = StateExecuting
	s.lastUsed = p.submitted
	s.mu.Unlock()

	// The sentinel line makes the shell report the user command's exit
	// status on a line of its own; its prompt is the true completion
	// signal. The nonce keeps the token from colliding with output.
	payload := command + "\n" + "echo " + p.nonce + ":$?" + "\n"
	if _, err := s.channel.Write([]byte(payload)); err != nil {
		s.abandon(p)
		return nil, fmt.Errorf("write command: %w", err)
	}
	s.setPendingState(p, commandAwaitingPrompt)
	s.logger.Debug("command submitted", "command", command)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		return p.result, nil
	case <-timer.C:
		if s.abandon(p) {
			// Resolved concurrently with the timer; use the real outcome.
			<-p.done
			if p.err != nil {
				return nil, p.err
			}
			return p.result, nil
		}
		s.logger.Warn("command timed out", "command", command, "timeout", timeout)
		return nil, ErrTimeout
	case <-ctx.Done():
		if s.abandon(p) {
			<-p.done
			if p.err != nil {
				return nil, p.err
			}
			return p.result, nil
		}
		return nil, ctx.Err()
	}
}

// abandon releases the execution slot for a command the caller gave up on.
// It reports true if the command had already been resolved.
func (s *Session) abandon(p *pendingCommand) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != p {
		return true
	}
	p.state = commandTimedOut
	s.pending = nil
	if s.state == StateExecuting {
		s.state = StateReady
	}
	return false
}

func (s *Session) setPendingState(p *pendingCommand, st commandState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == p {
		p.state = st
	}
}

// tryResolveLocked completes the pending command once its sentinel token
// and the prompt boundary after it have both been observed. The caller
// holds s.mu.
func (s *Session) tryResolveLocked() {
	p := s.pending
	captured := p.capture.Bytes()

	marker := []byte("\n" + p.nonce + ":")
	idx := bytes.Index(captured, marker)
	if idx < 0 {
		return
	}
	digits := captured[idx+len(marker):]
	n := 0
	for n < len(digits) && digits[n] >= '0' && digits[n] <= '9' {
		n++
	}
	if n == 0 || n >= len(digits) {
		return // token not fully delivered yet
	}
	if digits[n] != '\r' && digits[n] != '\n' {
		return
	}
	exitCode, err := strconv.Atoi(string(digits[:n]))
	if err != nil {
		return
	}
	tokenEnd := p.startRaw + int64(idx+len(marker)+n)

	// The completion signal is the prompt emitted after the sentinel's
	// output; the prompt before the sentinel echo delimits stdout.
	var outputEnd int64 = -1
	complete := false
	for _, b := range p.bounds {
		if outputEnd < 0 && b.Start >= p.startRaw {
			outputEnd = b.Start
		}
		if b.Start >= tokenEnd {
			complete = true
			break
		}
	}
	if !complete {
		return
	}

	stdout := ""
	if echoEnd := bytes.IndexByte(captured, '\n'); echoEnd >= 0 && outputEnd >= 0 {
		lo := int64(echoEnd + 1)
		hi := outputEnd - p.startRaw
		if hi > int64(len(captured)) {
			hi = int64(len(captured))
		}
		if hi > lo {
			stdout = string(captured[lo:hi])
		}
	}

	p.result = &Result{
		Stdout:   stdout,
		ExitCode: exitCode,
		Duration: time.Since(p.submitted),
	}
	s.finishLocked(p, p.result, nil)
}

// finishLocked resolves the pending command and releases the execution
// slot. The caller holds s.mu.
func (s *Session) finishLocked(p *pendingCommand, res *Result, err error) {
	if s.pending != p {
		return
	}
	s.pending = nil
	if s.state == StateExecuting {
		s.state = StateReady
	}
	s.lastUsed = time.Now()
	if err != nil {
		p.state = commandTimedOut
	} else {
		p.state = commandCompleted
	}
	p.result = res
	p.err = err
	close(p.done)
	if err == nil && res != nil {
		s.logger.Debug("command completed",
			"command", p.command,
			"exit_code", res.ExitCode,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
}
