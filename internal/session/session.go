// Package session binds a remote channel, prompt matcher, history buffer,
// and command executor into one addressable unit of lifecycle.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AltairaLabs/sshterm-mcp/internal/config"
	"github.com/AltairaLabs/sshterm-mcp/internal/history"
	"github.com/AltairaLabs/sshterm-mcp/internal/prompt"
)

// State represents the lifecycle state of a session
type State string

const (
	// StateConnecting indicates the prompt handshake is still in progress
	StateConnecting State = "connecting"
	// StateReady indicates the session can accept a command
	StateReady State = "ready"
	// StateExecuting indicates a command is in flight
	StateExecuting State = "executing"
	// StateClosing indicates shutdown is draining in-flight work
	StateClosing State = "closing"
	// StateClosed indicates an orderly termination
	StateClosed State = "closed"
	// StateFailed indicates the remote channel failed
	StateFailed State = "failed"
)

// Status is a point-in-time snapshot of a session for listings.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"status"`
	Target    string    `json:"target,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Session owns exactly one remote channel, one prompt matcher, one history
// buffer, and one command executor slot. All channel bytes flow through a
// single goroutine: read, match, append, fan out, in that order, which is
// what keeps history ordering identical for every observer.
type Session struct {
	name      string
	target    string
	createdAt time.Time
	cfg       config.SessionConfig
	logger    *slog.Logger

	channel RemoteChannel
	matcher *prompt.Matcher
	buffer  *history.Buffer

	mu        sync.Mutex
	state     State
	lastUsed  time.Time
	recording bool
	pending   *pendingCommand
	readySent bool
	readyErr  error

	// handshake tail: raw bytes retained before recording starts so a
	// prompt literal split across reads is still appended in full
	htail      []byte
	htailStart int64

	done    chan struct{}
	readyCh chan struct{}
}

// Connect starts a session over an already-open channel: it injects the
// prompt literal, waits for the first real prompt emission, and returns a
// Ready session whose history begins at that prompt. Nothing before the
// first boundary is recorded, and no boundary is ever synthesized.
func Connect(ctx context.Context, name, target string, ch RemoteChannel, cfg config.SessionConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		name:      name,
		target:    target,
		createdAt: time.Now(),
		cfg:       cfg,
		logger:    logger.With("session", name),
		channel:   ch,
		matcher:   prompt.NewMatcher(prompt.Literal(name)),
		buffer:    history.NewBuffer(config.DefaultObserverDepth),
		state:     StateConnecting,
		done:      make(chan struct{}),
		readyCh:   make(chan struct{}),
	}
	s.lastUsed = s.createdAt

	go s.run()

	if _, err := io.WriteString(ch, prompt.InitCommand(s.matcher.Literal())); err != nil {
		_ = ch.Close()
		<-s.done
		return nil, &ConnectError{Target: target, Err: err}
	}

	timer := time.NewTimer(cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-s.readyCh:
		if s.readyErr != nil {
			return nil, &ConnectError{Target: target, Err: s.readyErr}
		}
		s.logger.Info("session ready", "target", target)
		return s, nil
	case <-timer.C:
		_ = ch.Close()
		<-s.done
		return nil, &ConnectError{Target: target, Err: ErrTimeout}
	case <-ctx.Done():
		_ = ch.Close()
		<-s.done
		return nil, &ConnectError{Target: target, Err: ctx.Err()}
	}
}

// Name returns the caller-assigned session name.
func (s *Session) Name() string {
	return s.name
}

// History returns the session's history buffer.
func (s *Session) History() *history.Buffer {
	return s.buffer
}

// Hub returns the broadcast hub for attaching observers.
func (s *Session) Hub() *history.Hub {
	return s.buffer.Hub()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot for session listings.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Name:      s.name,
		State:     s.state,
		Target:    s.target,
		CreatedAt: s.createdAt,
		LastUsed:  s.lastUsed,
	}
}

// Close drives the session to Closed. An in-flight command is given the
// configured drain timeout before the channel is forced shut. Close is
// idempotent; closing a failed session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed, StateFailed:
		s.mu.Unlock()
		return nil
	}
	p := s.pending
	s.state = StateClosing
	s.mu.Unlock()

	if p != nil {
		drain := time.NewTimer(s.cfg.CloseDrainTimeout)
		defer drain.Stop()
		select {
		case <-p.done:
		case <-drain.C:
			s.logger.Warn("closing with command still in flight", "command", p.command)
		case <-ctx.Done():
		}
	}

	err := s.channel.Close()
	<-s.done
	s.logger.Info("session closed")
	return err
}

// run is the session's single byte-processing loop: it drains the remote
// channel and pushes everything through the matcher into the history buffer.
func (s *Session) run() {
	defer close(s.done)
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := s.channel.Read(buf)
		if n > 0 {
			s.ingest(buf[:n])
		}
		if err != nil {
			s.terminate(err)
			return
		}
	}
}

// ingest feeds one channel delivery through the matcher and appends the
// recorded portion to the history buffer, splitting chunks at boundary ends
// so a chunk's boundary flag is exact.
func (s *Session) ingest(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bounds := s.matcher.Feed(p)
	feedStart := s.matcher.Consumed() - int64(len(p))

	if !s.recording {
		if len(bounds) == 0 {
			s.retainHandshakeTail(p)
			return
		}
		// Recording starts at the first byte of the first real prompt. The
		// prompt may have begun in an earlier delivery; reconstruct it from
		// the retained tail.
		first := bounds[0]
		var seg []byte
		if first.Start >= feedStart {
			seg = p[first.Start-feedStart:]
		} else {
			off := first.Start - s.htailStart
			seg = append(append([]byte(nil), s.htail[off:]...), p...)
		}
		s.recording = true
		s.htail = nil
		s.appendSegments(seg, first.Start, bounds)
		s.signalReadyLocked(nil)
		return
	}

	s.appendSegments(p, feedStart, bounds)

	if pend := s.pending; pend != nil {
		pend.capture.Write(p)
		for _, b := range bounds {
			if b.End > pend.startRaw {
				pend.bounds = append(pend.bounds, b)
			}
		}
		s.tryResolveLocked()
		if s.pending != nil && s.matcher.Consumed()-pend.startRaw > s.cfg.MaxScanBytes {
			// Prompt ambiguity: no completion within the byte budget. From
			// the caller's perspective this is a timeout.
			s.logger.Warn("prompt scan budget exhausted", "command", pend.command)
			s.finishLocked(pend, nil, ErrTimeout)
		}
	}
}

// retainHandshakeTail keeps just enough pre-recording bytes to reconstruct
// a prompt literal that straddles the recording start.
func (s *Session) retainHandshakeTail(p []byte) {
	s.htail = append(s.htail, p...)
	keep := len(s.matcher.Literal())
	if trim := len(s.htail) - keep; trim > 0 {
		s.htailStart += int64(trim)
		s.htail = append(s.htail[:0], s.htail[trim:]...)
	}
}

// appendSegments appends seg (stream offset segStart) as one or more
// chunks, cut at each boundary end so that a chunk carrying a confirmed
// boundary carries it at its end.
func (s *Session) appendSegments(seg []byte, segStart int64, bounds []prompt.Boundary) {
	cur := segStart
	segEnd := segStart + int64(len(seg))
	for _, b := range bounds {
		if b.End <= cur || b.End > segEnd {
			continue
		}
		s.buffer.Append(seg[cur-segStart:b.End-segStart], true)
		cur = b.End
	}
	if cur < segEnd {
		s.buffer.Append(seg[cur-segStart:], false)
	}
}

// terminate finalizes the session when the channel read loop exits.
func (s *Session) terminate(readErr error) {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	var hubErr error
	switch s.state {
	case StateClosing, StateClosed:
		s.state = StateClosed
		s.signalReadyLocked(ErrSessionClosed)
	default:
		s.state = StateFailed
		hubErr = readErr
		s.logger.Error("remote channel failed", "error", readErr)
		s.signalReadyLocked(readErr)
	}
	s.mu.Unlock()

	if p != nil {
		p.err = ErrSessionClosed
		close(p.done)
	}
	s.buffer.Hub().Close(hubErr)
}

// signalReadyLocked wakes Connect exactly once.
func (s *Session) signalReadyLocked(err error) {
	if s.readySent {
		return
	}
	s.readySent = true
	if err == nil && s.state == StateConnecting {
		s.state = StateReady
	}
	s.readyErr = err
	close(s.readyCh)
}
