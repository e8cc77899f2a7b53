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

package httpserver

import (
	"net"

	"github.com/sabouaram/evhttp/pkg/buffer"
	liberr "github.com/sabouaram/evhttp/pkg/errors"
	"github.com/sabouaram/evhttp/pkg/netconn"
	"github.com/sabouaram/evhttp/pkg/tlsconn"
)

// transport is the subset of netconn.Conn / tlsconn.Conn the HTTP pipeline
// needs, letting one state machine (pipeline.go) drive either a plaintext
// or a TLS-wrapped connection — both already implement the identical
// application-facing contract design premise.
type transport interface {
	RecvPersistent(cb func(buf *buffer.NetBuffer)) liberr.Error
	CancelRecv()
	SendGathered(bufs net.Buffers, cb func()) liberr.Error
	SetOnClose(cb func())
	SetOnError(cb func(reason string))
	Close()
}

// plainTransport adapts *netconn.Conn to transport.
type plainTransport struct{ c *netconn.Conn }

func (t plainTransport) RecvPersistent(cb func(buf *buffer.NetBuffer)) liberr.Error {
	return t.c.RecvPersistent(cb)
}
func (t plainTransport) CancelRecv() { t.c.CancelRecv() }
func (t plainTransport) SendGathered(bufs net.Buffers, cb func()) liberr.Error {
	return t.c.SendGathered(func() { cb() }, bufs, 0)
}
func (t plainTransport) SetOnClose(cb func()) { t.c.SetOnClose(cb) }
func (t plainTransport) SetOnError(cb func(reason string)) { t.c.SetOnError(cb) }
func (t plainTransport) Close() { t.c.Close() }

// tlsTransport adapts *tlsconn.Conn to transport. crypto/tls has no gathered
// write of its own, so the response's segments are copied into one
// plaintext buffer before a single Send.
type tlsTransport struct{ c *tlsconn.Conn }

func (t tlsTransport) RecvPersistent(cb func(buf *buffer.NetBuffer)) liberr.Error {
	return t.c.RecvPersistent(cb)
}
func (t tlsTransport) CancelRecv() { t.c.CancelRecv() }
func (t tlsTransport) SendGathered(bufs net.Buffers, cb func()) liberr.Error {
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	flat := make([]byte, 0, total)
	for _, b := range bufs {
		flat = append(flat, b...)
	}
	return t.c.Send(flat, func() { cb() })
}
func (t tlsTransport) SetOnClose(cb func()) { t.c.SetOnClose(cb) }
func (t tlsTransport) SetOnError(cb func(reason string)) { t.c.SetOnError(cb) }
func (t tlsTransport) Close() { t.c.Close() }
