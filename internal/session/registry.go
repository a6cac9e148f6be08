package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"
)

// Session names become part of the injected prompt literal, so they are
// restricted to characters that cannot break shell quoting.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateName reports whether name is usable as a session name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name is required")
	}
	if !nameRE.MatchString(name) {
		return fmt.Errorf("invalid session name %q: use letters, digits, '.', '_' or '-'", name)
	}
	return nil
}

// Registry is the process-scoped collection of live sessions, addressed by
// caller-assigned name. It is passed explicitly into the dispatch layer
// rather than accessed as ambient state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Add registers a connected session under its name. It fails with
// ErrSessionExists if the name is taken; the caller keeps ownership of the
// rejected session.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.Name())
	}
	r.sessions[s.Name()] = s
	r.logger.Info("session registered", "session", s.Name(), "count", len(r.sessions))
	return nil
}

// Get retrieves a session by name.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// List returns a status snapshot of every registered session, ordered by
// name for stable output.
func (r *Registry) List() []Status {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remove closes the named session and drops it from the registry.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	return s.Close(ctx)
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CleanupStale closes and drops sessions idle for longer than maxAge.
// Sessions with a command in flight are left alone regardless of age;
// dead sessions are dropped so their history stops pinning memory.
func (r *Registry) CleanupStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	var stale []*Session
	for name, s := range r.sessions {
		st := s.Status()
		if st.State == StateExecuting {
			continue
		}
		if st.LastUsed.After(cutoff) && st.State != StateClosed && st.State != StateFailed {
			continue
		}
		stale = append(stale, s)
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, s := range stale {
		if err := s.Close(ctx); err != nil {
			r.logger.Warn("stale session close", "session", s.Name(), "error", err)
		}
		r.logger.Info("stale session removed", "session", s.Name())
	}
	return len(stale)
}

// Shutdown closes every registered session and empties the registry.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			r.logger.Warn("session close during shutdown", "session", s.Name(), "error", err)
		}
	}
}
