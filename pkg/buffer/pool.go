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

import "sync"

// Entry is a pooled NetBuffer with a stable identity (Tag) distinct from its
// content, so a caller holding onto an Entry's Tag across a reallocation
// can still dedupe by Tag without caring which bytes currently live there.
type Entry struct {
	Tag uint64
	Buf *NetBuffer
}

// Pool is a bounded, single-threaded-by-convention free list of fixed-size
// NetBuffer entries. It is safe for concurrent use, but this module's
// connections only ever touch it from the reactor thread — the mutex exists
// for the rare case of a pool shared across a handful of reactor shards,
// not for general multi-threaded access.
type Pool struct {
	mu sync.Mutex
	free []*Entry
	capacity int
	bufSize int
	nextTag uint64
}

// NewPool creates a Pool holding up to capacity entries of bufSize bytes
// each. NewPool applies no defaults of its own; httpserver.NewServer passes
// 128 entries of 4096 bytes unless configured otherwise.
func NewPool(capacity, bufSize int) *Pool {
	return &Pool{capacity: capacity, bufSize: bufSize}
}

// Allocate returns a free entry, or a newly allocated one if the free list
// is empty. Entries are reset (cleared) on allocation rather than left
// holding a prior connection's bytes (see DESIGN.md).
func (p *Pool) Allocate() *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		e := p.free[n-1]
		p.free = p.free[:n-1]
		e.Buf.Clear()
		return e
	}

	p.nextTag++
	return &Entry{Tag: p.nextTag, Buf: New(p.bufSize)}
}

// Release returns an entry to the free list if capacity allows, otherwise
// discards it (letting the GC reclaim it).
func (p *Pool) Release(e *Entry) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, e)
}

// Len reports how many entries currently sit in the free list (test/diagnostic use).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
