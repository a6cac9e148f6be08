package history

import (
	"errors"

	"github.com/google/uuid"
)

// ErrObserverLagged terminates an observer whose delivery channel filled up.
// A lagged observer is detached rather than skipped past: no observer ever
// sees a gap in the chunk stream.
var ErrObserverLagged = errors.New("observer fell behind chunk fan-out")

// Observer is a subscription handle for one consumer of a session's history.
// It receives the full replay followed by live appends, each chunk exactly
// once, in sequence order.
type Observer struct {
	id     string
	ch     chan Chunk
	err    error
	closed bool
}

// ID returns the observer's unique identifier.
func (o *Observer) ID() string {
	return o.id
}

// Events returns the chunk stream. The channel is closed on detach, on
// session termination, or when the observer lags; Err reports why.
func (o *Observer) Events() <-chan Chunk {
	return o.ch
}

// Err returns the termination reason, if any. It is valid to call once
// Events has been closed.
func (o *Observer) Err() error {
	return o.err
}

// Hub fans newly appended chunks out to all attached observers and serves
// late attachers a consistent replay-then-live transition. It shares its
// buffer's lock, making attach atomic with respect to Append: no chunk
// appended after the replay snapshot is missed, none is delivered twice.
type Hub struct {
	buf       *Buffer
	depth     int
	observers map[string]*Observer
	closed    bool
	closeErr  error
}

func newHub(buf *Buffer, depth int) *Hub {
	return &Hub{
		buf:       buf,
		depth:     depth,
		observers: make(map[string]*Observer),
	}
}

// Attach delivers the current replay into a new observer and registers it
// for all subsequent appends. Attaching to a closed hub yields the final
// replay and an immediately closed stream.
func (h *Hub) Attach() *Observer {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()

	o := &Observer{
		id: uuid.NewString(),
		ch: make(chan Chunk, len(h.buf.chunks)+h.depth),
	}
	for _, c := range h.buf.chunks {
		o.ch <- c
	}
	if h.closed {
		o.err = h.closeErr
		o.closed = true
		close(o.ch)
		return o
	}
	h.observers[o.id] = o
	return o
}

// Detach stops future notifications for the observer. It is idempotent and
// has no effect on the session or on other observers.
func (h *Hub) Detach(o *Observer) {
	if o == nil {
		return
	}
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	h.closeObserverLocked(o, nil)
}

// Close terminates every observer, signaling end-of-stream. A non-nil err
// marks the stream as ended by failure. Observers attached afterwards get
// the replay and an immediately closed stream.
func (h *Hub) Close(err error) {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.closeErr = err
	for _, o := range h.observers {
		h.closeObserverLocked(o, err)
	}
}

// ObserverCount returns the number of currently attached observers.
func (h *Hub) ObserverCount() int {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	return len(h.observers)
}

// publishLocked fans a chunk out to all observers. Caller holds the buffer
// lock, which is what keeps every observer's delivery order identical to
// sequence order.
func (h *Hub) publishLocked(c Chunk) {
	for _, o := range h.observers {
		select {
		case o.ch <- c:
		default:
			h.closeObserverLocked(o, ErrObserverLagged)
		}
	}
}

func (h *Hub) closeObserverLocked(o *Observer, err error) {
	if o.closed {
		return
	}
	delete(h.observers, o.id)
	o.err = err
	o.closed = true
	close(o.ch)
}
