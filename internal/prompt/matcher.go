// Package prompt recognizes shell prompt boundaries in a terminal byte stream.
package prompt

import "bytes"

// Boundary marks one recognized prompt occurrence. Offsets are absolute
// over all bytes ever fed to the matcher: Start is the first byte of the
// prompt literal, End is one past its last byte.
type Boundary struct {
	Start int64
	End   int64
}

// Matcher scans a byte stream for a fixed prompt literal anchored at the
// start of a line. It never synthesizes boundaries: only literal text that
// actually arrived is ever reported, and each occurrence is reported once.
type Matcher struct {
	literal []byte

	// consumed is the absolute offset of the next incoming byte.
	consumed int64
	// carry holds up to len(literal)-1 trailing bytes from previous feeds
	// so a literal split across two reads is still found.
	carry []byte
	// carryLineStart records whether carry[0] sits at the start of a line.
	carryLineStart bool
	// lastEnd is the absolute end offset of the last reported boundary.
	lastEnd int64
}

// NewMatcher creates a matcher for the given prompt literal.
func NewMatcher(literal string) *Matcher {
	return &Matcher{
		literal:        []byte(literal),
		carryLineStart: true, // stream start counts as a line start
	}
}

// Literal returns the prompt literal this matcher recognizes.
func (m *Matcher) Literal() string {
	return string(m.literal)
}

// Feed scans p for prompt boundaries and returns those found in this call,
// in stream order. Boundaries whose literal straddles the previous feed are
// attributed to the call that delivered the final byte.
func (m *Matcher) Feed(p []byte) []Boundary {
	if len(p) == 0 {
		return nil
	}

	buf := make([]byte, 0, len(m.carry)+len(p))
	buf = append(buf, m.carry...)
	buf = append(buf, p...)
	base := m.consumed - int64(len(m.carry))
	startFlag := m.carryLineStart

	var found []Boundary
	search := 0
	for search <= len(buf)-len(m.literal) {
		idx := bytes.Index(buf[search:], m.literal)
		if idx < 0 {
			break
		}
		pos := search + idx
		atLineStart := pos == 0 && startFlag || pos > 0 && buf[pos-1] == '\n'
		abs := base + int64(pos)
		if atLineStart && abs >= m.lastEnd {
			b := Boundary{Start: abs, End: abs + int64(len(m.literal))}
			found = append(found, b)
			m.lastEnd = b.End
			search = pos + len(m.literal)
			continue
		}
		search = pos + 1
	}

	m.consumed += int64(len(p))

	keep := len(m.literal) - 1
	if keep > len(buf) {
		keep = len(buf)
	}
	cut := len(buf) - keep
	switch {
	case cut == 0:
		// carryLineStart unchanged
	case buf[cut-1] == '\n':
		m.carryLineStart = true
	default:
		m.carryLineStart = false
	}
	m.carry = append(m.carry[:0], buf[cut:]...)

	return found
}

// Consumed returns the total number of bytes fed so far.
func (m *Matcher) Consumed() int64 {
	return m.consumed
}

// BytesSinceBoundary returns how many bytes have been consumed since the end
// of the last reported boundary. This backs the scan budget that converts a
// never-matching prompt into a timeout.
func (m *Matcher) BytesSinceBoundary() int64 {
	return m.consumed - m.lastEnd
}
