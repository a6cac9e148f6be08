// Package sshconn dials SSH targets and hands back an interactive shell
// channel: a PTY-backed remote shell exposed as a plain byte stream.
package sshconn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/AltairaLabs/sshterm-mcp/internal/config"
	"github.com/AltairaLabs/sshterm-mcp/internal/session"
)

// Target identifies a remote host and the credentials to reach it. Exactly
// one of Password, PrivateKeyPEM, or PrivateKeyPath must be set; when more
// than one is present, key material wins over the password.
type Target struct {
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKeyPEM  string
	PrivateKeyPath string
}

// Addr returns the host:port dial address, defaulting the port to 22.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// String renders the target for logs and errors without credentials.
func (t Target) String() string {
	return t.User + "@" + t.Addr()
}

func (t Target) validate() error {
	if t.Host == "" {
		return fmt.Errorf("target host is required")
	}
	if t.User == "" {
		return fmt.Errorf("target user is required")
	}
	if t.Password == "" && t.PrivateKeyPEM == "" && t.PrivateKeyPath == "" {
		return fmt.Errorf("target needs a password or a private key")
	}
	return nil
}

func (t Target) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	pem := []byte(t.PrivateKeyPEM)
	if len(pem) == 0 && t.PrivateKeyPath != "" {
		data, err := os.ReadFile(t.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		pem = data
	}
	if len(pem) > 0 {
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if t.Password != "" {
		methods = append(methods, ssh.Password(t.Password))
	}
	return methods, nil
}

// Dialer opens interactive shell channels over SSH. The zero value is
// usable and applies the default connect timeout.
type Dialer struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Open connects to the target, requests a PTY, and starts a shell. The
// returned channel merges stdout and stderr the way a terminal does.
// Host keys are not verified.
func (d *Dialer) Open(ctx context.Context, t Target) (session.RemoteChannel, error) {
	if err := t.validate(); err != nil {
		return nil, &session.ConnectError{Target: t.String(), Err: err}
	}
	methods, err := t.authMethods()
	if err != nil {
		return nil, &session.ConnectError{Target: t.String(), Err: err}
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = config.DefaultConnectTimeout
	}

	cfg := &ssh.ClientConfig{
		User:            t.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := t.Addr()
	nd := net.Dialer{Timeout: timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &session.ConnectError{Target: t.String(), Err: fmt.Errorf("dial: %w", err)}
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, &session.ConnectError{Target: t.String(), Err: fmt.Errorf("handshake: %w", err)}
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	ch, err := openShell(client)
	if err != nil {
		client.Close()
		return nil, &session.ConnectError{Target: t.String(), Err: err}
	}
	if d.Logger != nil {
		d.Logger.Debug("ssh shell opened", "target", t.String())
	}
	return ch, nil
}

func openShell(client *ssh.Client) (*shellChannel, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	if err := sess.RequestPty("xterm", 80, 40, ssh.TerminalModes{}); err != nil {
		sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}
	return &shellChannel{client: client, sess: sess, stdin: stdin, stdout: stdout}, nil
}

// shellChannel adapts an SSH shell session to the byte-stream channel the
// session engine consumes.
type shellChannel struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
}

func (c *shellChannel) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

func (c *shellChannel) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

// Close tears the whole connection down; the pending Read unblocks with an
// error once the transport is gone.
func (c *shellChannel) Close() error {
	_ = c.stdin.Close()
	_ = c.sess.Close()
	return c.client.Close()
}
