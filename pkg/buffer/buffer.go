/*
 * MIT License
 *
 * Copyright (c) 2024 Sabou Aram
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package buffer implements a fixed-capacity byte region with an explicit
// append/read mode ("NetBuffer"). It plays the role nabbar-golib/ioutils'
// byte helpers and nabbar-golib's bufio-wrapped connections play together,
// but collapsed into one explicit state machine
// so the reactor-driven NBC (pkg/netconn) and TLS state machine
// (pkg/tlsconn) can both reason about "position/limit/unread-start" without
// hiding it behind bufio.
package buffer

// Mode is the NetBuffer's read/append state.
type Mode int

const (
	// Append is the default mode: writes land at pos, which advances toward limit.
	Append Mode = iota
	// Read is the consuming mode: pos is the read cursor, limit is the data end.
	Read
)

// NetBuffer is a fixed-capacity byte region with an explicit Append/Read
// mode and a persistent "unread start" cursor (startPos) that survives mode
// flips.
type NetBuffer struct {
	buf []byte
	pos int
	limit int
	startPos int
	mode Mode
}

// New allocates a NetBuffer of the given capacity, starting cleared (Append
// mode, pos=0, limit=capacity).
func New(capacity int) *NetBuffer {
	return &NetBuffer{
		buf: make([]byte, capacity),
		pos: 0,
		limit: capacity,
		mode: Append,
	}
}

// Capacity returns the fixed backing size.
func (n *NetBuffer) Capacity() int { return len(n.buf) }

// Mode returns the current Append/Read state.
func (n *NetBuffer) Mode() Mode { return n.mode }

// FlipAppend switches to Append mode. A no-op if already Append. Otherwise
// the current read cursor becomes the new unread-start (so a later FlipRead
// resumes exactly where this read cycle left off), and writing resumes at
// the previous data end.
func (n *NetBuffer) FlipAppend() {
	if n.mode == Append {
		return
	}
	oldLimit := n.limit
	n.startPos = n.pos
	n.pos = oldLimit
	n.limit = len(n.buf)
	n.mode = Append
}

// FlipRead switches to Read mode. A no-op if already Read. The read cursor
// resumes at startPos and the limit becomes the current write position
// (the end of valid data).
func (n *NetBuffer) FlipRead() {
	if n.mode == Read {
		return
	}
	n.limit = n.pos
	n.pos = n.startPos
	n.mode = Read
}

// Clear resets the buffer to a freshly-allocated state: Append mode,
// pos=0, limit=capacity, startPos=0. Any unread data is discarded.
func (n *NetBuffer) Clear() {
	n.pos = 0
	n.limit = len(n.buf)
	n.startPos = 0
	n.mode = Append
}

// unreadRange returns the [lo, hi) byte range holding data not yet
// delivered to a reader, regardless of current mode.
func (n *NetBuffer) unreadRange() (lo, hi int) {
	if n.mode == Read {
		return n.pos, n.limit
	}
	return n.startPos, n.pos
}

// Compact moves unread bytes to offset 0, resets startPos to 0, and leaves
// the buffer in Append mode ready to receive more data after the moved tail.
func (n *NetBuffer) Compact() {
	lo, hi := n.unreadRange()
	moved := copy(n.buf, n.buf[lo:hi])
	n.startPos = 0
	n.pos = moved
	n.limit = len(n.buf)
	n.mode = Append
}

// IsEmpty reports whether there are zero bytes available for reading.
func (n *NetBuffer) IsEmpty() bool {
	lo, hi := n.unreadRange()
	return hi <= lo
}

// IsFull reports whether there is no room left to append more data.
func (n *NetBuffer) IsFull() bool {
	if n.mode == Append {
		return n.pos >= n.limit
	}
	// In Read mode "full" describes the data region already occupying the
	// whole backing array, i.e. the write cursor that produced it reached
	// capacity.
	return n.limit >= len(n.buf)
}

// IsCleared reports whether the buffer is in its pristine post-Clear state.
func (n *NetBuffer) IsCleared() bool {
	return n.mode == Append && n.pos == 0 && n.limit == len(n.buf) && n.startPos == 0
}

// IsCompacted reports whether startPos is already 0 (a Compact would be a no-op).
func (n *NetBuffer) IsCompacted() bool {
	return n.startPos == 0
}

// NeedsResize reports whether the current capacity is below the requested size.
func (n *NetBuffer) NeedsResize(size int) bool {
	return len(n.buf) < size
}

// Resize grows (or shrinks) capacity to size, preserving unread data. A
// no-op if capacity already equals size.
func (n *NetBuffer) Resize(size int) {
	if len(n.buf) == size {
		return
	}
	lo, hi := n.unreadRange()
	next := make([]byte, size)
	moved := copy(next, n.buf[lo:hi])
	n.buf = next
	n.startPos = 0
	if n.mode == Append {
		n.pos = moved
		n.limit = size
	} else {
		n.pos = 0
		n.limit = moved
	}
}

// ResizeUnsafe replaces the backing array with a new one of the given size,
// discarding all content. Used only when the buffer is already known empty.
func (n *NetBuffer) ResizeUnsafe(size int) {
	n.buf = make([]byte, size)
	n.pos = 0
	n.limit = size
	n.startPos = 0
	n.mode = Append
}

// WritableSlice returns the region available for appending (Append mode
// only): bytes read from a socket land here, then Advance(n) commits them.
func (n *NetBuffer) WritableSlice() []byte {
	return n.buf[n.pos:n.limit]
}

// Advance commits `n` freshly-written bytes in Append mode, moving pos
// forward. Panics if it would overrun limit — callers must NeedsResize/Resize
// first, matching the overflow handling the TLS record-layer goroutines do.
func (n *NetBuffer) Advance(written int) {
	if n.mode != Append {
		panic("buffer: Advance called outside Append mode")
	}
	if n.pos+written > n.limit {
		panic("buffer: Advance overruns limit")
	}
	n.pos += written
}

// ReadableSlice returns the unread region in Read mode: bytes a parser or
// TLS unwrap step should consume.
func (n *NetBuffer) ReadableSlice() []byte {
	return n.buf[n.pos:n.limit]
}

// Consume marks `n` bytes as read in Read mode, advancing the read cursor.
func (n *NetBuffer) Consume(nRead int) {
	if n.mode != Read {
		panic("buffer: Consume called outside Read mode")
	}
	if n.pos+nRead > n.limit {
		panic("buffer: Consume overruns limit")
	}
	n.pos += nRead
}

// Unread returns the number of bytes available for reading, regardless of
// current mode — handy for logging/diagnostics without forcing a flip.
func (n *NetBuffer) Unread() int {
	lo, hi := n.unreadRange()
	if hi < lo {
		return 0
	}
	return hi - lo
}
