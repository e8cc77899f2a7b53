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

package buffer

import "net"

// inserter is a scoped handle for splicing bytes into a Builder at a fixed
// position (front or back). Its lifetime follows scoped acquisition
// semantics: on release the inserter's bytes are spliced into the gather
// list.
type inserter struct {
	b *Builder
	pos insertPos
}

type insertPos int

const (
	insertFront insertPos = iota
	insertBack
)

// Write appends bytes to the inserter's pending segment.
func (i *inserter) Write(p []byte) (int, error) {
	i.b.pending[i.pos] = append(i.b.pending[i.pos], p...)
	return len(p), nil
}

// Release splices the inserter's accumulated bytes into the Builder's
// gather list at the designated position. There is no implicit flush on
// garbage collection — a caller that never calls Release loses the bytes.
func (i *inserter) Release() {
	if len(i.b.pending[i.pos]) == 0 {
		return
	}
	switch i.pos {
	case insertFront:
		i.b.prepend = append(i.b.prepend, i.b.pending[i.pos])
	case insertBack:
		i.b.appendSeg = append(i.b.appendSeg, i.b.pending[i.pos])
	}
	i.b.pending[i.pos] = nil
}

// Builder is a gathered-write builder: an ordered sequence of segments
// filled sequentially, plus an optional prepend and append segment stitched
// in at Build time. It backs the HTTP response writer's
// status-line+headers+body assembly.
type Builder struct {
	prepend [][]byte
	body [][]byte
	appendSeg [][]byte
	pending [2][]byte
}

// NewBuilder returns an empty gather Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WriteString appends a copy of s to the body as one segment.
func (b *Builder) WriteString(s string) *Builder {
	if s == "" {
		return b
	}
	b.body = append(b.body, []byte(s))
	return b
}

// WriteBuffer appends a reference to buf's readable bytes (or, if buf is in
// Append mode, its written-so-far bytes) to the body, without mutating buf.
func (b *Builder) WriteBuffer(buf *NetBuffer) *Builder {
	lo, hi := buf.unreadRange()
	if hi <= lo {
		return b
	}
	b.body = append(b.body, buf.buf[lo:hi])
	return b
}

// WriteBytes appends a raw byte slice segment to the body by reference.
func (b *Builder) WriteBytes(p []byte) *Builder {
	if len(p) == 0 {
		return b
	}
	b.body = append(b.body, p)
	return b
}

// InsertFront acquires an inserter for the prepend segment (e.g. the HTTP
// status line, written after headers are known but destined first on the wire).
func (b *Builder) InsertFront() *inserter { return &inserter{b: b, pos: insertFront} }

// InsertBack acquires an inserter for the append segment (e.g. a trailing
// CRLF or TLS close_notify framing).
func (b *Builder) InsertBack() *inserter { return &inserter{b: b, pos: insertBack} }

// Build returns the final buffer array in writing order: prepend + body +
// append. The result is a net.Buffers, which Go's net package already knows
// how to submit as a single writev(2) gathered write on a *net.TCPConn.
func (b *Builder) Build() net.Buffers {
	out := make(net.Buffers, 0, len(b.prepend)+len(b.body)+len(b.appendSeg))
	out = append(out, b.prepend...)
	out = append(out, b.body...)
	out = append(out, b.appendSeg...)
	return out
}

// Reset clears the builder for reuse (response writer "clear after send").
func (b *Builder) Reset() {
	b.prepend = nil
	b.body = nil
	b.appendSeg = nil
	b.pending[0] = nil
	b.pending[1] = nil
}

// TotalLen returns the sum of all segment lengths, used to compute
// Content-Length without re-walking the net.Buffers after Build.
func (b *Builder) TotalLen() int {
	total := 0
	for _, seg := range b.prepend {
		total += len(seg)
	}
	for _, seg := range b.body {
		total += len(seg)
	}
	for _, seg := range b.appendSeg {
		total += len(seg)
	}
	return total
}
