package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/sshterm-mcp/internal/session"
)

const writeDeadline = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// MonitorServer streams session history over websockets: on attach the
// client receives the full transcript as chunk frames, then live chunks
// as they arrive, in the same order every other observer sees.
type MonitorServer struct {
	registry *session.Registry
	logger   *slog.Logger
}

// NewMonitorServer creates a monitor server over the given registry.
func NewMonitorServer(registry *session.Registry, logger *slog.Logger) *MonitorServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorServer{registry: registry, logger: logger}
}

// Handler returns the HTTP routes served by the monitor.
func (m *MonitorServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{name}/stream", m.handleStream)
	return mux
}

// ListenAndServe runs the monitor until the context is canceled.
func (m *MonitorServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (m *MonitorServer) handleStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	sess, ok := m.registry.Get(name)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "session", name, "error", err)
		return
	}
	defer conn.Close()

	obs := sess.Hub().Attach()
	defer sess.Hub().Detach(obs)
	m.logger.Debug("monitor attached", "session", name, "observer", obs.ID())

	// Drain the client side so we notice a close.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case c, ok := <-obs.Events():
			if !ok {
				code := websocket.CloseNormalClosure
				reason := ""
				if err := obs.Err(); err != nil {
					code = websocket.CloseInternalServerErr
					reason = err.Error()
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(c); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
