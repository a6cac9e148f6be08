package session

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
)

// fakeResponse scripts how the fake shell reacts to one command line.
type fakeResponse struct {
	output string // raw bytes emitted after the echo, CRLF included
	exit   int
	hang   bool // command never returns to a prompt until finishHang
}

// fakeShell emulates a remote shell behind a PTY: it echoes input lines
// with CRLF, honors the PS1 injection line, expands the exit-status
// sentinel, and re-emits the prompt after every command.
type fakeShell struct {
	out       chan []byte
	leftover  []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	inbuf     []byte
	prompt    string
	lastExit  int
	responses map[string]fakeResponse
	hanging   bool
}

func newFakeShell(banner string) *fakeShell {
	f := &fakeShell{
		out:       make(chan []byte, 256),
		closed:    make(chan struct{}),
		responses: make(map[string]fakeResponse),
	}
	if banner != "" {
		f.out <- []byte(banner)
	}
	return f
}

func (f *fakeShell) respond(cmd string, r fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmd] = r
}

func (f *fakeShell) emit(s string) {
	select {
	case f.out <- []byte(s):
	case <-f.closed:
	}
}

func (f *fakeShell) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, errors.New("write on closed channel")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbuf = append(f.inbuf, p...)
	f.processLocked()
	return len(p), nil
}

// processLocked consumes complete input lines. A hanging command stops
// consumption, like a busy shell leaving later input in the PTY queue.
func (f *fakeShell) processLocked() {
	for !f.hanging {
		idx := bytes.IndexByte(f.inbuf, '\n')
		if idx < 0 {
			return
		}
		line := string(f.inbuf[:idx])
		f.inbuf = f.inbuf[idx+1:]
		f.runLocked(line)
	}
}

func (f *fakeShell) runLocked(line string) {
	f.emit(line + "\r\n") // terminal echo
	switch {
	case strings.HasPrefix(line, "export PS1='"):
		rest := strings.TrimPrefix(line, "export PS1='")
		if end := strings.Index(rest, "'"); end >= 0 {
			f.prompt = rest[:end]
		}
		f.lastExit = 0
		f.emit(f.prompt)
	case strings.HasPrefix(line, "echo ") && strings.HasSuffix(line, ":$?"):
		token := strings.TrimSuffix(strings.TrimPrefix(line, "echo "), "$?")
		f.emit(token + strconv.Itoa(f.lastExit) + "\r\n")
		f.emit(f.prompt)
	default:
		resp, ok := f.responses[line]
		if !ok {
			resp = fakeResponse{output: "sh: " + line + ": command not found\r\n", exit: 127}
		}
		if resp.hang {
			f.hanging = true
			return
		}
		if resp.output != "" {
			f.emit(resp.output)
		}
		f.lastExit = resp.exit
		f.emit(f.prompt)
	}
}

// finishHang completes a hanging command and resumes queued input.
func (f *fakeShell) finishHang(output string, exit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hanging {
		return
	}
	f.hanging = false
	if output != "" {
		f.emit(output)
	}
	f.lastExit = exit
	f.emit(f.prompt)
	f.processLocked()
}

func (f *fakeShell) Read(p []byte) (int, error) {
	if len(f.leftover) > 0 {
		n := copy(p, f.leftover)
		f.leftover = f.leftover[n:]
		return n, nil
	}
	select {
	case b := <-f.out:
		n := copy(p, b)
		f.leftover = b[n:]
		return n, nil
	case <-f.closed:
		select {
		case b := <-f.out:
			n := copy(p, b)
			f.leftover = b[n:]
			return n, nil
		default:
			return 0, io.EOF
		}
	}
}

func (f *fakeShell) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// quietChannel accepts writes but never produces output; Read blocks until
// the channel closes.
type quietChannel struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newQuietChannel() *quietChannel {
	return &quietChannel{closed: make(chan struct{})}
}

func (q *quietChannel) Read(p []byte) (int, error) {
	<-q.closed
	return 0, io.EOF
}

func (q *quietChannel) Write(p []byte) (int, error) {
	select {
	case <-q.closed:
		return 0, errors.New("write on closed channel")
	default:
		return len(p), nil
	}
}

func (q *quietChannel) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
