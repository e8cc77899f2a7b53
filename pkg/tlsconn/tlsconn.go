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

// Package tlsconn implements the TLS Connection (TLSC): a TLS layer over a
// netconn.Conn that never blocks the reactor thread. It has no
// wrap/unwrap step machine of its own; crypto/tls drives the records, as
// described below.
//
// frames the TLS engine (wrap, unwrap, delegated tasks,
// handshake status) as an external collaborator the TLSC orchestrates,
// modeled on javax.net.ssl.SSLEngine. Go's crypto/tls, unlike SSLEngine,
// does not expose a non-blocking single-record wrap/unwrap primitive — its
// *tls.Conn is a blocking net.Conn wrapper, and no third-party module in
// the dependency pack fills that gap either (see DESIGN.md). This package
// resolves the mismatch by running the engine (crypto/tls.Conn) on a
// dedicated per-connection goroutine pair, bridged to the reactor through
// the same cross-thread task queue already prescribes for
// "scheduled tasks" (reactor.Post) — generalized here from one-off
// delegated tasks to the engine's entire blocking record-layer loop. The
// application-facing contract (Recv/RecvPersistent/Send/Close) stays
// identical to netconn.Conn, and every callback is still only ever invoked
// from the reactor thread.
package tlsconn

import (
	"crypto/tls"
	"sync"

	"github.com/sabouaram/evhttp/pkg/buffer"
	liberr "github.com/sabouaram/evhttp/pkg/errors"
	liblog "github.com/sabouaram/evhttp/pkg/logger"
	"github.com/sabouaram/evhttp/pkg/netconn"
	"github.com/sabouaram/evhttp/pkg/reactor"
)

// HandshakeStatus mirrors the vocabulary of dispatcher
// states, kept for logging and tests even though crypto/tls owns the
// actual handshake progression internally.
type HandshakeStatus int

const (
	StateHandshaking HandshakeStatus = iota
	StateActive
	StateClosing
	StateClosed
)

func (s HandshakeStatus) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// OnRecv delivers decrypted application bytes, same shape as netconn.OnRecv.
type OnRecv func(buf *buffer.NetBuffer)
type OnSend func()
type OnClose func()
type OnError func(reason string)

// Conn layers a TLS session over a netconn.Conn. One connection owns two
// worker goroutines (app-read loop, app-write loop) driving a single
// *tls.Conn; the reactor thread never calls into crypto/tls directly.
type Conn struct {
	nbc *netconn.Conn
	rx *reactor.Reactor
	log *liblog.Logger

	raw *pipeConn
	tls *tls.Conn
	started bool

	state HandshakeStatus
	mu sync.Mutex // guards state only; callbacks always run on the reactor thread

	recvCB OnRecv
	recvKeep bool // true while the armed callback is RecvPersistent, not one-shot Recv
	recvBuf *buffer.NetBuffer

	// pendingChunk/pendingDone hold a decrypted record the read loop already
	// drained from the wire but could not deliver because no recv callback
	// was armed (CancelRecv was called, or Recv/RecvPersistent was never
	// called yet). The read loop blocks on pendingDone instead of issuing
	// another tls.Read, which is this connection's equivalent of the NBC's
	// read-interest-mask backpressure ("needs_app_recv" latch): bytes are
	// held, never dropped, until the application re-arms recv.
	pendingChunk []byte
	pendingDone chan struct{}

	sendQueue chan sendJob

	onClose OnClose
	onError OnError

	closed bool
	// shuttingDown is set the moment a peer-close or transport error is
	// observed on the underlying NBC, before the TLS goroutines unwind.
	// It suppresses the fireError the unwinding read/write loops would
	// otherwise also post, so a single peer-close fires exactly one of
	// on_close/on_error rather than both.
	shuttingDown bool
}

type sendJob struct {
	data []byte
	cb OnSend
}

// New wraps nbc (already registered with rx) in a TLS session. cfg must
// already carry either server certificates (isServer) or an InsecureSkipVerify
// / RootCAs choice appropriate for the client role.
func New(nbc *netconn.Conn, rx *reactor.Reactor, cfg *tls.Config, isServer bool, log *liblog.Logger) *Conn {
	c := &Conn{
		nbc: nbc,
		rx: rx,
		log: log,
		state: StateHandshaking,
		sendQueue: make(chan sendJob, 64),
		recvBuf: buffer.New(nbc.OutBuffer().Capacity()),
	}

	c.raw = newPipeConn(func(p []byte) {
		// crypto/tls produced ciphertext: hand it to the NBC on the reactor
		// thread via the task queue, never write the fd from the TLS goroutine.
		cp := make([]byte, len(p))
		copy(cp, p)
		c.rx.Post(func() { c.flushCiphertext(cp) })
	})

	if isServer {
		c.tls = tls.Server(c.raw, cfg)
	} else {
		c.tls = tls.Client(c.raw, cfg)
	}

	return c
}

func (c *Conn) SetOnClose(cb OnClose) { c.onClose = cb }
func (c *Conn) SetOnError(cb OnError) { c.onError = cb }

// Start wires the NBC's receive side into the TLS ciphertext inbox and
// launches the worker goroutines. Call once, before Recv/Send.
func (c *Conn) Start() liberr.Error {
	if c.started {
		return nil
	}
	c.started = true

	if err := c.nbc.RecvPersistent(func(buf *buffer.NetBuffer) {
		c.raw.in.Push(buf.ReadableSlice())
	}); err != nil {
		return err
	}
	c.nbc.SetOnClose(func() {
		// Fire first, then mark shuttingDown: fireClose/fireError below
		// must still run on this, the first signal for the connection.
		// shuttingDown only needs to be set before raw.in.Close() wakes the
		// read loop, so its subsequent (redundant) error is suppressed.
		c.fireClose()
		c.shuttingDown = true
		c.raw.in.Close()
	})
	c.nbc.SetOnError(func(reason string) {
		c.fireError(reason)
		c.shuttingDown = true
		c.raw.in.Close()
	})

	go c.writeLoop()
	// The read loop is launched exactly once, here, for the connection's
	// whole lifetime. Recv/RecvPersistent only ever update recvCB/recvKeep;
	// they must never spawn another goroutine reading the same *tls.Conn,
	// or a keep-alive connection that calls RecvPersistent again after
	// every response (pipeline.onResponseSent) would accumulate one blocked
	// reader per request/response cycle.
	go c.readLoop()

	return nil
}

// flushCiphertext appends wire bytes to the NBC's out-buffer and sends —
// runs on the reactor thread (posted via reactor.Post).
func (c *Conn) flushCiphertext(p []byte) {
	if c.closed {
		return
	}
	out := c.nbc.OutBuffer()
	if out.Mode() != buffer.Append {
		out.FlipAppend()
	}
	if out.NeedsResize(len(p)) {
		out.Resize(out.Capacity() + len(p))
	}
	if out.IsFull() {
		out.Compact()
	}
	n := copy(out.WritableSlice(), p)
	out.Advance(n)
	_ = c.nbc.Send(func() {})
	if n < len(p) {
		// buffer couldn't take it all in one pass (should not happen given
		// the resize above); drop the remainder into a second append.
		c.flushCiphertext(p[n:])
	}
}

// writeLoop drains queued application writes into crypto/tls.Write, which
// synchronously invokes raw.Write (our onSend callback) for every record it
// produces. Runs entirely off the reactor thread.
func (c *Conn) writeLoop() {
	for job := range c.sendQueue {
		_, err := c.tls.Write(job.data)
		cb := job.cb
		if err != nil {
			c.rx.Post(func() { c.onLoopErr(err) })
			return
		}
		if cb != nil {
			c.rx.Post(cb)
		}
	}
}

// readLoop runs crypto/tls's blocking Read in a dedicated goroutine for the
// whole life of the connection, delivering decrypted application data back
// to the reactor thread. Launched exactly once, from Start.
//
// After each record it blocks on a per-record "delivered" handshake with
// the reactor thread (deliverOrQueue/<-done) before issuing the next
// tls.Read: if no recv callback happens to be armed when a record drains,
// the record is held in pendingChunk rather than dropped, and the loop
// does not advance until the application re-arms recv and claims it. This
// reproduces the backpressure netconn.Conn gets for free from the kernel
// socket buffer (CancelRecv there just stops reading from the fd; here the
// wire bytes are already decrypted, so they must be held in memory instead).
func (c *Conn) readLoop() {
	for {
		buf := make([]byte, c.recvBuf.Capacity())
		n, err := c.tls.Read(buf)
		if err != nil {
			c.rx.Post(func() { c.onLoopErr(err) })
			return
		}
		if n == 0 {
			continue
		}
		chunk := buf[:n]
		done := make(chan struct{})
		c.rx.Post(func() { c.deliverOrQueue(chunk, done) })
		<-done
	}
}

func (c *Conn) onLoopErr(err error) {
	if c.closed || c.shuttingDown {
		return // peer-close / local Close already handled on_close or on_error
	}
	c.fireError(err.Error())
}

// deliverOrQueue runs on the reactor thread. If a recv callback is armed it
// delivers immediately and releases the read loop; otherwise it stashes the
// record and leaves the read loop blocked until Recv/RecvPersistent claims it.
func (c *Conn) deliverOrQueue(chunk []byte, done chan struct{}) {
	if c.closed {
		close(done)
		return
	}
	if c.recvCB == nil {
		c.pendingChunk = chunk
		c.pendingDone = done
		return
	}
	c.deliverNow(chunk)
	close(done)
}

func (c *Conn) deliverNow(chunk []byte) {
	c.mu.Lock()
	wasHandshaking := c.state == StateHandshaking
	c.state = StateActive
	c.mu.Unlock()
	if wasHandshaking && c.log != nil {
		c.log.Info("tlsconn: handshake complete").Log()
	}

	c.recvBuf.Clear()
	if c.recvBuf.NeedsResize(len(chunk)) {
		c.recvBuf.Resize(len(chunk))
	}
	c.recvBuf.FlipAppend()
	c.recvBuf.Advance(copy(c.recvBuf.WritableSlice(), chunk))
	c.recvBuf.FlipRead()

	cb := c.recvCB
	if !c.recvKeep {
		c.recvCB = nil
	}
	cb(c.recvBuf)
}

// releasePending hands any record the read loop is blocked holding to the
// callback just armed by Recv/RecvPersistent, unblocking the read loop.
func (c *Conn) releasePending() {
	if c.pendingDone == nil {
		return
	}
	chunk := c.pendingChunk
	done := c.pendingDone
	c.pendingChunk = nil
	c.pendingDone = nil
	c.deliverNow(chunk)
	close(done)
}

// Recv arms a one-shot decrypted-data callback.
func (c *Conn) Recv(cb OnRecv) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "tlsconn: nil recv callback")
	}
	c.recvCB = cb
	c.recvKeep = false
	c.releasePending()
	return nil
}

// RecvPersistent arms a callback that stays armed across deliveries.
func (c *Conn) RecvPersistent(cb OnRecv) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "tlsconn: nil recv callback")
	}
	c.recvCB = cb
	c.recvKeep = true
	c.releasePending()
	return nil
}

// CancelRecv disarms the receive side. Idempotent. The read loop keeps
// running underneath — a record that drains while disarmed is held in
// pendingChunk (see deliverOrQueue), not dropped.
func (c *Conn) CancelRecv() OnRecv {
	prev := c.recvCB
	c.recvCB = nil
	return prev
}

// Send encrypts and transmits p, invoking cb once crypto/tls has accepted
// (and thus queued to the wire) the whole payload.
func (c *Conn) Send(p []byte, cb OnSend) liberr.Error {
	if c.closed {
		return liberr.New(liberr.CodeTransport, "tlsconn: send on closed connection")
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case c.sendQueue <- sendJob{data: cp, cb: cb}:
		return nil
	default:
		return liberr.New(liberr.CodeTransport, "tlsconn: send queue full")
	}
}

func (c *Conn) fireClose() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	if c.log != nil {
		c.log.Debug("tlsconn: connection closed").Log()
	}
	if c.onClose != nil {
		c.onClose()
	}
}

// fireError also guards on shuttingDown, not just closed: onLoopErr already
// checks both before calling in from the read/write loop's error path, but
// fireError re-checks here so any other future caller can't reintroduce the
// dual on_close/on_error fire that a peer-close used to trigger.
func (c *Conn) fireError(reason string) {
	if c.closed || c.shuttingDown {
		return
	}
	if c.log != nil {
		c.log.Warn("tlsconn: I/O failure").Field("reason", reason).Log()
	}
	if c.onError != nil {
		c.onError(reason)
	}
}

// Close performs a graceful TLS shutdown (close_notify) then tears down the
// underlying NBC. Idempotent.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.mu.Lock()
	c.state = StateClosing
	c.mu.Unlock()

	close(c.sendQueue)
	_ = c.tls.Close() // best-effort close_notify
	_ = c.raw.Close()
	c.nbc.Close()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	if c.log != nil {
		c.log.Debug("tlsconn: local close initiated").Log()
	}
}

// IsClosed reports whether Close has already run.
func (c *Conn) IsClosed() bool { return c.closed }

// State reports the current handshake/session state, for logging and tests.
func (c *Conn) State() HandshakeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
