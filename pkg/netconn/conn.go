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

// Package netconn implements the Non-blocking Connection (NBC): one socket,
// an in-buffer and out-buffer, a callback set, driven by a reactor.Reactor.
// Grounded on nabbar-golib/httpserver's connection lifecycle
// (accept → install callbacks → live set → close) and on
// nabbar-golib's socket/* test suite (client/server TCP contract), generalized
// from goroutine-per-connection blocking I/O to single-threaded
// readiness-driven I/O.
package netconn

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/evhttp/pkg/buffer"
	liberr "github.com/sabouaram/evhttp/pkg/errors"
	liblog "github.com/sabouaram/evhttp/pkg/logger"
	"github.com/sabouaram/evhttp/pkg/reactor"
)

// OnRecv is invoked once data is available; buf is in Read mode holding the
// freshly-received bytes.
type OnRecv func(buf *buffer.NetBuffer)

// OnSend is invoked when a send configuration completes (fully drained, or
// once for SendPartial after any forward progress).
type OnSend func()

// OnClose is invoked when the peer closes (observed on read) — informational;
// the caller must still call Close().
type OnClose func()

// OnError is invoked with a human-readable reason on any I/O failure.
type OnError func(reason string)

type recvMode int

const (
	recvNone recvMode = iota
	recvOneShot
	recvOneShotAppend
	recvPersistent
	recvPersistentAppend
)

type sendMode int

const (
	sendNone sendMode = iota
	sendInternalFull
	sendInternalPartial
	sendExternalSingle
	sendExternalMultiple
)

const defaultMaxSeqOps = 4

// Conn is a single non-blocking socket driven by a reactor.Reactor.
type Conn struct {
	fd int
	tok reactor.Token
	rx *reactor.Reactor
	log *liblog.Logger

	pool *buffer.Pool
	inEnt *buffer.Entry
	outEnt *buffer.Entry
	inBuf *buffer.NetBuffer
	outBuf *buffer.NetBuffer

	recvCB OnRecv
	recvMd recvMode
	insideRx bool
	rxReconf bool

	sendCB OnSend
	sendMd sendMode
	extBuf *buffer.NetBuffer
	extBufs net.Buffers
	extRemain int
	insideTx bool

	onClose OnClose
	onError OnError

	seqOps int
	maxSeqOps int

	closed bool
}

// New wraps fd (already a non-blocking socket) as a Conn registered with rx,
// borrowing an in/out buffer pair from pool.
func New(fd int, rx *reactor.Reactor, pool *buffer.Pool, log *liblog.Logger) (*Conn, liberr.Error) {
	c := &Conn{
		fd: fd,
		rx: rx,
		pool: pool,
		log: log,
		maxSeqOps: defaultMaxSeqOps,
	}
	c.inEnt = pool.Allocate()
	c.outEnt = pool.Allocate()
	c.inBuf = c.inEnt.Buf
	c.outBuf = c.outEnt.Buf

	tok, err := rx.Register(fd, 0, c.onReady)
	if err != nil {
		pool.Release(c.inEnt)
		pool.Release(c.outEnt)
		return nil, err
	}
	c.tok = tok
	return c, nil
}

// Fd returns the underlying file descriptor (used by tlsconn to drive the
// same reactor registration under a TLS session).
func (c *Conn) Fd() int { return c.fd }

// OutBuffer exposes the internal out-buffer so a caller (response writer,
// TLS net-out stage) can append bytes before calling Send.
func (c *Conn) OutBuffer() *buffer.NetBuffer { return c.outBuf }

func (c *Conn) SetOnClose(cb OnClose) { c.onClose = cb }
func (c *Conn) SetOnError(cb OnError) { c.onError = cb }

func (c *Conn) onReady(ready reactor.Interest) {
	c.seqOps = 0 // reset the sequential-op bound at the top of each reactor event
	if ready&reactor.Read != 0 {
		c.processRead()
	}
	if ready&reactor.Write != 0 {
		c.processWrite()
	}
}

func (c *Conn) syncInterest() {
	if c.closed {
		return
	}
	var mask reactor.Interest
	if c.recvCB != nil {
		mask |= reactor.Read
	}
	if c.sendCB != nil {
		mask |= reactor.Write
	}
	_ = c.rx.ModifyInterest(c.tok, mask)
}

// ---- Receive side ----

func (c *Conn) setRecv(cb OnRecv, md recvMode) {
	c.recvCB = cb
	c.recvMd = md
	if c.insideRx {
		c.rxReconf = true
	}
	c.syncInterest()
}

// Recv arms a one-shot receive; the in-buffer is cleared before the read.
func (c *Conn) Recv(cb OnRecv) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "netconn: nil recv callback")
	}
	c.inBuf.Clear()
	c.setRecv(cb, recvOneShot)
	c.kickRecv()
	return nil
}

// RecvAppend arms a one-shot receive that appends to the existing buffer
// contents rather than clearing first. If buf is non-nil it replaces the
// connection's in-buffer (caller-managed buffer,).
func (c *Conn) RecvAppend(cb OnRecv, buf *buffer.NetBuffer) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "netconn: nil recv callback")
	}
	if buf != nil {
		c.inBuf = buf
	}
	c.setRecv(cb, recvOneShotAppend)
	c.kickRecv()
	return nil
}

// RecvPersistent arms a receive that stays armed across deliveries,
// clearing the in-buffer before each read.
func (c *Conn) RecvPersistent(cb OnRecv) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "netconn: nil recv callback")
	}
	c.inBuf.Clear()
	c.setRecv(cb, recvPersistent)
	c.kickRecv()
	return nil
}

// RecvAppendPersistent arms a persistent receive that never auto-clears the
// in-buffer; the caller manages it (typically consuming fully each delivery).
func (c *Conn) RecvAppendPersistent(cb OnRecv, buf *buffer.NetBuffer) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "netconn: nil recv callback")
	}
	if buf != nil {
		c.inBuf = buf
	}
	c.setRecv(cb, recvPersistentAppend)
	c.kickRecv()
	return nil
}

// CancelRecv disarms the receive side, returning the previously-armed
// callback (or nil). Idempotent.
func (c *Conn) CancelRecv() OnRecv {
	prev := c.recvCB
	c.recvCB = nil
	c.recvMd = recvNone
	if c.insideRx {
		c.rxReconf = true
	}
	c.syncInterest()
	return prev
}

func (c *Conn) kickRecv() {
	if c.closed || c.recvCB == nil {
		return
	}
	if c.seqOps >= c.maxSeqOps {
		return // reactor will redeliver on the next readiness event
	}
	c.seqOps++
	c.processRead()
}

// processRead performs one read-handling pass, "Read handling".
func (c *Conn) processRead() {
	if c.closed || c.recvCB == nil {
		return
	}

	switch c.recvMd {
	case recvPersistentAppend:
		// caller manages the buffer: no clear.
	case recvPersistent:
		c.inBuf.Clear()
	default:
		// one-shot variants: the buffer was already prepared at configure time.
	}

	if c.inBuf.Mode() != buffer.Append {
		c.inBuf.FlipAppend()
	}
	if c.inBuf.IsFull() {
		c.inBuf.Compact()
	}

	n, err := unix.Read(c.fd, c.inBuf.WritableSlice())
	if err != nil {
		if err == unix.EAGAIN {
			c.syncInterest()
			return
		}
		c.fail(err)
		return
	}
	if n == 0 {
		c.firePeerClose()
		return
	}

	c.inBuf.Advance(n)
	c.inBuf.FlipRead()

	persistent := c.recvMd == recvPersistent || c.recvMd == recvPersistentAppend
	origMd := c.recvMd
	cb := c.recvCB

	// Clear the callback slot (and read interest) before dispatch, per
	// invariant, so the callback's own reconfiguration wins.
	c.recvCB = nil
	c.recvMd = recvNone
	c.syncInterest()

	c.insideRx = true
	c.rxReconf = false

	cb(c.inBuf)

	wasReconfigured := c.rxReconf
	c.insideRx = false

	if persistent && !wasReconfigured && !c.closed {
		// the handler didn't reconfigure recv itself: re-arm automatically,
		// which is what "persistent" means from the caller's perspective.
		c.recvCB = cb
		c.recvMd = origMd
		c.syncInterest()
		c.kickRecv()
	} else if c.recvCB != nil {
		c.kickRecv()
	}
}

func (c *Conn) firePeerClose() {
	c.recvCB = nil
	c.recvMd = recvNone
	c.syncInterest()
	if c.log != nil {
		c.log.Debug("netconn: peer closed connection").Log()
	}
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Conn) fail(err error) {
	c.recvCB = nil
	c.sendCB = nil
	c.recvMd = recvNone
	c.sendMd = sendNone
	c.syncInterest()
	if c.log != nil {
		c.log.Warn("netconn: I/O failure").Field("err", err).Log()
	}
	if c.onError != nil {
		c.onError(err.Error())
	}
}

// ---- Send side ----

// Send drains the internal out-buffer; cb fires once fully sent. If the
// out-buffer is already empty, cb fires synchronously.
func (c *Conn) Send(cb OnSend) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "netconn: nil send callback")
	}
	if c.outBuf.Mode() != buffer.Read {
		c.outBuf.FlipRead()
	}
	if c.outBuf.IsEmpty() {
		cb()
		return nil
	}
	c.sendCB = cb
	c.sendMd = sendInternalFull
	c.syncInterest()
	c.kickSend()
	return nil
}

// SendPartial sends at least one byte of the internal out-buffer; cb fires
// after any forward progress (not necessarily full drain) — the caller
// typically reschedules from within cb.
func (c *Conn) SendPartial(cb OnSend) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "netconn: nil send callback")
	}
	if c.outBuf.Mode() != buffer.Read {
		c.outBuf.FlipRead()
	}
	if c.outBuf.IsEmpty() {
		cb()
		return nil
	}
	c.sendCB = cb
	c.sendMd = sendInternalPartial
	c.syncInterest()
	c.kickSend()
	return nil
}

// SendBuffer sends buf (an external, caller-owned buffer) without copying;
// buf must not be mutated while in flight.
func (c *Conn) SendBuffer(cb OnSend, buf *buffer.NetBuffer) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "netconn: nil send callback")
	}
	if buf.Mode() != buffer.Read {
		buf.FlipRead()
	}
	if buf.IsEmpty() {
		cb()
		return nil
	}
	c.extBuf = buf
	c.sendCB = cb
	c.sendMd = sendExternalSingle
	c.syncInterest()
	c.kickSend()
	return nil
}

// SendGathered performs a gathered write of bufs; bytesRemaining is the
// total byte count, or 0 to mean "sum the buffers".
func (c *Conn) SendGathered(cb OnSend, bufs net.Buffers, bytesRemaining int) liberr.Error {
	if cb == nil {
		return liberr.New(liberr.CodeInvalidArgument, "netconn: nil send callback")
	}
	if bytesRemaining == 0 {
		for _, b := range bufs {
			bytesRemaining += len(b)
		}
	}
	if bytesRemaining == 0 {
		cb()
		return nil
	}
	c.extBufs = bufs
	c.extRemain = bytesRemaining
	c.sendCB = cb
	c.sendMd = sendExternalMultiple
	c.syncInterest()
	c.kickSend()
	return nil
}

func (c *Conn) kickSend() {
	if c.closed || c.sendCB == nil {
		return
	}
	if c.seqOps >= c.maxSeqOps {
		return
	}
	c.seqOps++
	c.processWrite()
}

func (c *Conn) dispatchSend() {
	cb := c.sendCB
	c.sendCB = nil
	c.sendMd = sendNone
	c.syncInterest()

	c.insideTx = true
	cb()
	c.insideTx = false

	if c.sendCB != nil {
		c.kickSend()
	}
}

// processWrite performs one write-handling pass, "Write handling".
func (c *Conn) processWrite() {
	if c.closed || c.sendCB == nil {
		return
	}

	switch c.sendMd {
	case sendExternalMultiple:
		n, err := writevFd(c.fd, c.extBufs)
		if err != nil {
			if err == unix.EAGAIN {
				c.syncInterest()
				return
			}
			c.fail(err)
			return
		}
		c.extRemain -= n
		c.extBufs = trimBuffers(c.extBufs, n)
		if c.extRemain <= 0 {
			c.extBufs = nil
			c.dispatchSend()
		} else {
			c.syncInterest()
		}

	default: // sendInternalFull, sendInternalPartial, sendExternalSingle
		buf := c.outBuf
		if c.sendMd == sendExternalSingle {
			buf = c.extBuf
		}

		n, err := unix.Write(c.fd, buf.ReadableSlice())
		if err != nil {
			if err == unix.EAGAIN {
				c.syncInterest()
				return
			}
			c.fail(err)
			return
		}
		buf.Consume(n)

		if buf.IsEmpty() {
			c.dispatchSend()
		} else if c.sendMd == sendInternalPartial {
			c.dispatchSend()
		} else {
			c.syncInterest()
		}
	}
}

func trimBuffers(bufs net.Buffers, n int) net.Buffers {
	for n > 0 && len(bufs) > 0 {
		if len(bufs[0]) <= n {
			n -= len(bufs[0])
			bufs = bufs[1:]
		} else {
			bufs[0] = bufs[0][n:]
			n = 0
		}
	}
	return bufs
}

// Close closes the socket, unregisters from the reactor, and releases pool
// entries. Idempotent.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.recvCB = nil
	c.sendCB = nil
	c.rx.Unregister(c.tok)
	_ = unix.Close(c.fd)
	if c.pool != nil {
		c.pool.Release(c.inEnt)
		c.pool.Release(c.outEnt)
	}
	if c.log != nil {
		c.log.Debug("netconn: connection closed").Log()
	}
}

// IsClosed reports whether Close has already run.
func (c *Conn) IsClosed() bool { return c.closed }
