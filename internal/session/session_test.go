package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/AltairaLabs/sshterm-mcp/internal/config"
	"github.com/AltairaLabs/sshterm-mcp/internal/history"
	"github.com/AltairaLabs/sshterm-mcp/internal/prompt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.SessionConfig {
	cfg := config.DefaultSessionConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ExecTimeout = 2 * time.Second
	cfg.CloseDrainTimeout = 200 * time.Millisecond
	return cfg
}

func startSession(t *testing.T, name string) (*Session, *fakeShell) {
	t.Helper()
	sh := newFakeShell("Last login: Fri Aug 29 10:12:01\r\nuser@host:~$ ")
	s, err := Connect(context.Background(), name, "user@host:22", sh, testConfig(), testLogger())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, sh
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected state %q, got %q", want, s.State())
}

func TestConnectHandshake(t *testing.T) {
	s, _ := startSession(t, "build")

	if s.State() != StateReady {
		t.Errorf("Expected state %q, got %q", StateReady, s.State())
	}
	hist := string(s.History().Bytes())
	lit := prompt.Literal("build")
	if hist != lit {
		t.Errorf("Expected history to hold only the first prompt %q, got %q", lit, hist)
	}
	if strings.Contains(hist, "Last login") {
		t.Errorf("Expected pre-prompt banner to be discarded, history %q", hist)
	}
}

func TestConnectStatus(t *testing.T) {
	s, _ := startSession(t, "build")

	st := s.Status()
	if st.Name != "build" {
		t.Errorf("Expected name %q, got %q", "build", st.Name)
	}
	if st.Target != "user@host:22" {
		t.Errorf("Expected target %q, got %q", "user@host:22", st.Target)
	}
	if st.State != StateReady {
		t.Errorf("Expected state %q, got %q", StateReady, st.State)
	}
	if st.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestConnectTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 150 * time.Millisecond
	ch := newQuietChannel()

	_, err := Connect(context.Background(), "dead", "user@host:22", ch, cfg, testLogger())
	if err == nil {
		t.Fatal("Expected Connect to fail when no prompt appears")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Errorf("Expected a ConnectError, got %T", err)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestExecCapturesExactOutput(t *testing.T) {
	s, sh := startSession(t, "build")
	sh.respond(`echo "testing terminal fix"`, fakeResponse{output: "testing terminal fix\r\n"})

	res, err := s.Submit(context.Background(), `echo "testing terminal fix"`, 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Stdout != "testing terminal fix\r\n" {
		t.Errorf("Expected stdout %q, got %q", "testing terminal fix\r\n", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", res.ExitCode)
	}
	if res.Duration <= 0 {
		t.Errorf("Expected positive duration, got %v", res.Duration)
	}
}

func TestExecHistoryHasSinglePromptPerBoundary(t *testing.T) {
	s, sh := startSession(t, "build")
	sh.respond("pwd", fakeResponse{output: "/home/user\r\n"})

	if _, err := s.Submit(context.Background(), "pwd", 0); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	hist := string(s.History().Bytes())
	lit := prompt.Literal("build")
	// handshake prompt, prompt after the command, prompt after the sentinel
	if got := strings.Count(hist, lit); got != 3 {
		t.Errorf("Expected 3 prompt occurrences, got %d in %q", got, hist)
	}
	if got := strings.Count(hist, "pwd\r\n"); got != 1 {
		t.Errorf("Expected the command echo exactly once, got %d in %q", got, hist)
	}
}

func TestExecNonZeroExit(t *testing.T) {
	s, sh := startSession(t, "build")
	sh.respond("false", fakeResponse{exit: 1})

	res, err := s.Submit(context.Background(), "false", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", res.ExitCode)
	}
	if res.Stdout != "" {
		t.Errorf("Expected empty stdout, got %q", res.Stdout)
	}
}

func TestExecBusy(t *testing.T) {
	s, sh := startSession(t, "build")
	sh.respond("sleep 60", fakeResponse{hang: true})

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "sleep 60", 5*time.Second)
		firstDone <- err
	}()
	waitForState(t, s, StateExecuting)

	if _, err := s.Submit(context.Background(), "true", 0); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}

	sh.finishHang("", 0)
	if err := <-firstDone; err != nil {
		t.Errorf("Expected in-flight command to finish cleanly, got %v", err)
	}
}

func TestExecTimeoutReleasesSession(t *testing.T) {
	s, sh := startSession(t, "build")
	sh.respond("sleep 60", fakeResponse{hang: true})
	sh.respond("pwd", fakeResponse{output: "/home/user\r\n"})

	_, err := s.Submit(context.Background(), "sleep 60", 150*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("Expected state %q after timeout, got %q", StateReady, s.State())
	}

	// The remote finishes on its own; later submits must work again.
	// Wait for the prompt after the abandoned command's sentinel to be
	// recorded so the next capture starts from a quiet stream.
	sh.finishHang("", 0)
	lit := prompt.Literal("build")
	deadline := time.Now().Add(2 * time.Second)
	for strings.Count(string(s.History().Bytes()), lit) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for the abandoned command to drain, history %q", s.History().Bytes())
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, err := s.Submit(context.Background(), "pwd", 0)
	if err != nil {
		t.Fatalf("Submit after timeout failed: %v", err)
	}
	if res.Stdout != "/home/user\r\n" {
		t.Errorf("Expected stdout %q, got %q", "/home/user\r\n", res.Stdout)
	}
}

func TestExecSequential(t *testing.T) {
	s, sh := startSession(t, "build")
	sh.respond("pwd", fakeResponse{output: "/home/user\r\n"})
	sh.respond("whoami", fakeResponse{output: "user\r\n"})

	res, err := s.Submit(context.Background(), "pwd", 0)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	if res.Stdout != "/home/user\r\n" {
		t.Errorf("Expected stdout %q, got %q", "/home/user\r\n", res.Stdout)
	}

	res, err = s.Submit(context.Background(), "whoami", 0)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if res.Stdout != "user\r\n" {
		t.Errorf("Expected stdout %q, got %q", "user\r\n", res.Stdout)
	}

	// Every command echo sits directly after a prompt.
	hist := string(s.History().Bytes())
	lit := prompt.Literal("build")
	for _, echo := range []string{"pwd\r\n", "whoami\r\n"} {
		idx := strings.Index(hist, echo)
		if idx < 0 {
			t.Fatalf("Expected echo %q in history %q", echo, hist)
		}
		if idx < len(lit) || hist[idx-len(lit):idx] != lit {
			t.Errorf("Expected echo %q to follow a prompt, history %q", echo, hist)
		}
	}
}

func TestSubmitRejectsMultilineCommand(t *testing.T) {
	s, _ := startSession(t, "build")

	if _, err := s.Submit(context.Background(), "echo a\necho b", 0); err == nil {
		t.Error("Expected multi-line command to be rejected")
	}
}

func TestSubmitOnClosedSession(t *testing.T) {
	s, _ := startSession(t, "build")
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := s.Submit(context.Background(), "pwd", 0); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := startSession(t, "build")

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state %q, got %q", StateClosed, s.State())
	}
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestAttachAfterClose(t *testing.T) {
	s, sh := startSession(t, "build")
	sh.respond("pwd", fakeResponse{output: "/home/user\r\n"})
	if _, err := s.Submit(context.Background(), "pwd", 0); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	want := s.History().Bytes()
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	obs := s.Hub().Attach()
	defer s.Hub().Detach(obs)
	var got []byte
	timeout := time.After(2 * time.Second)
	for {
		var (
			c  history.Chunk
			ok bool
		)
		select {
		case c, ok = <-obs.Events():
		case <-timeout:
			t.Fatal("Timed out waiting for observer stream to end")
		}
		if !ok {
			break
		}
		got = append(got, c.Bytes...)
	}
	if string(got) != string(want) {
		t.Errorf("Expected full replay %q, got %q", want, got)
	}
	if err := obs.Err(); err != nil {
		t.Errorf("Expected clean end of stream after orderly close, got %v", err)
	}
}

func TestChannelFailure(t *testing.T) {
	s, sh := startSession(t, "build")

	// Drop the transport out from under the session.
	_ = sh.Close()
	waitForState(t, s, StateFailed)

	obs := s.Hub().Attach()
	defer s.Hub().Detach(obs)
	var got []byte
	timeout := time.After(2 * time.Second)
	for {
		var (
			c  history.Chunk
			ok bool
		)
		select {
		case c, ok = <-obs.Events():
		case <-timeout:
			t.Fatal("Timed out waiting for observer stream to end")
		}
		if !ok {
			break
		}
		got = append(got, c.Bytes...)
	}
	if len(got) == 0 {
		t.Error("Expected history replay to survive channel failure")
	}
	if obs.Err() == nil {
		t.Error("Expected observer to carry the channel failure")
	}
}
