// Package history stores a session's terminal output as an append-only,
// sequence-numbered chunk stream and fans new chunks out to observers.
package history

import "sync"

// Chunk is one immutable slice of session output. Sequence numbers start at
// 0, are gap-free, and are never reused within a session. Boundary is true
// when a confirmed prompt boundary ends inside this chunk.
type Chunk struct {
	Seq      uint64 `json:"seq"`
	Bytes    []byte `json:"bytes"`
	Boundary bool   `json:"boundary,omitempty"`
}

// Buffer is the authoritative ordered record of one session's terminal
// bytes. Appends notify the buffer's hub before returning, so attached
// observers are never behind the buffer's own state.
type Buffer struct {
	mu     sync.Mutex
	chunks []Chunk
	size   int64
	hub    *Hub
}

// NewBuffer creates an empty buffer and its broadcast hub.
func NewBuffer(observerDepth int) *Buffer {
	b := &Buffer{}
	b.hub = newHub(b, observerDepth)
	return b
}

// Hub returns the broadcast hub fanning out this buffer's appends.
func (b *Buffer) Hub() *Hub {
	return b.hub
}

// Append stores p as the next chunk and synchronously notifies the hub.
// The bytes are copied; callers may reuse p.
func (b *Buffer) Append(p []byte, boundary bool) Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := Chunk{
		Seq:      uint64(len(b.chunks)),
		Bytes:    append([]byte(nil), p...),
		Boundary: boundary,
	}
	b.chunks = append(b.chunks, c)
	b.size += int64(len(p))
	b.hub.publishLocked(c)
	return c
}

// Replay returns every chunk appended so far, in sequence order.
func (b *Buffer) Replay() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Bytes returns the full concatenation of all appended output.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c.Bytes...)
	}
	return out
}

// Size returns the total number of bytes appended.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// ChunkCount returns the number of chunks appended.
func (b *Buffer) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
