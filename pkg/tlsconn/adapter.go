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

package tlsconn

import (
	"errors"
	"net"
	"sync"
	"time"
)

// byteQueue is a mutex-guarded FIFO of byte slices with a sync.Cond for the
// blocking consumer side. It is the bridge between the reactor thread
// (never blocks: Push only appends and signals) and the dedicated TLS
// worker goroutine (blocks in Pop waiting for ciphertext, exactly like a
// real socket read would).
type byteQueue struct {
	mu sync.Mutex
	cond *sync.Cond
	chunks [][]byte
	off int
	closed bool
}

func newByteQueue() *byteQueue {
	q := &byteQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *byteQueue) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	cp := make([]byte, len(p))
	copy(cp, p)

	q.mu.Lock()
	q.chunks = append(q.chunks, cp)
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *byteQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

// Pop blocks until bytes are available or the queue is closed. Returns
// io.EOF-equivalent (closed=true, n=0) once drained and closed.
func (q *byteQueue) Pop(p []byte) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.chunks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.chunks) == 0 {
		return 0, true // closed and drained
	}

	n := copy(p, q.chunks[0][q.off:])
	q.off += n
	if q.off >= len(q.chunks[0]) {
		q.chunks = q.chunks[1:]
		q.off = 0
	}
	return n, false
}

// pipeConn is a net.Conn whose Read side pulls from an inbound byteQueue and
// whose Write side hands ciphertext to a callback (rather than a raw
// socket), premise that the TLS engine "never blocks on
// I/O; it reports its needs" — here, crypto/tls's blocking Read/Write calls
// run on a dedicated goroutine (the delegated-task pattern 
// already prescribes for NEED_TASK, generalized to the whole record layer
// because Go's crypto/tls, unlike Java's SSLEngine, exposes no non-blocking
// wrap/unwrap primitive — see DESIGN.md).
type pipeConn struct {
	in *byteQueue
	onSend func(p []byte)
	closed bool
	mu sync.Mutex
}

func newPipeConn(onSend func(p []byte)) *pipeConn {
	return &pipeConn{in: newByteQueue(), onSend: onSend}
}

func (p *pipeConn) Read(b []byte) (int, error) {
	n, eof := p.in.Pop(b)
	if eof {
		return 0, errClosedPipe
	}
	return n, nil
}

func (p *pipeConn) Write(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, errClosedPipe
	}
	p.onSend(b)
	return len(b), nil
}

func (p *pipeConn) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.in.Close()
	return nil
}

func (p *pipeConn) LocalAddr() net.Addr { return pipeAddr{} }
func (p *pipeConn) RemoteAddr() net.Addr { return pipeAddr{} }
func (p *pipeConn) SetDeadline(time.Time) error { return nil }
func (p *pipeConn) SetReadDeadline(time.Time) error { return nil }
func (p *pipeConn) SetWriteDeadline(time.Time) error { return nil }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "tls-pipe" }
func (pipeAddr) String() string { return "tls-pipe" }

var errClosedPipe = errors.New("tlsconn: pipe closed")
