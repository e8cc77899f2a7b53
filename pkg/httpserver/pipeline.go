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

// Package httpserver implements the HTTP request pipeline and the HTTP
// server (§4.7): the layer that drives a netconn.Conn or tlsconn.Conn
// through request parsing, handler dispatch, and response serialization.
// The response writer itself is httpmsg.Response. Grounded on nabbar-golib/httpserver's
// accept/route/serve lifecycle, generalized from net/http's blocking model
// to the reactor-driven transport this repository builds below it.
package httpserver

import (
	"github.com/sabouaram/evhttp/pkg/buffer"
	liberr "github.com/sabouaram/evhttp/pkg/errors"
	"github.com/sabouaram/evhttp/pkg/httpmsg"
	liblog "github.com/sabouaram/evhttp/pkg/logger"
)

// pipelineState mirrors per-connection state machine.
type pipelineState int

const (
	stateRequestStart pipelineState = iota
	stateRequestHeaders
	stateMessageBody
	stateResponseSend
	stateClosed
	stateManual // handler takes over; receive loop returns without redispatch
)

// Handler processes a parsed request and writes a response. It runs
// synchronously on the reactor thread, as every other callback in this
// repository does.
type Handler func(req *httpmsg.Request, resp *httpmsg.Response)

// Pipeline drives one connection's HTTP state machine.
type Pipeline struct {
	t transport
	log *liblog.Logger
	pool *buffer.Pool

	routes map[string]Handler

	state pipelineState
	req *httpmsg.Request
	resp *httpmsg.Response
	pending []byte // bytes carried over between recv deliveries, pre-request-line parse
	capacity int

	onDispatch func(method string, status int, sentBytes int)
}

// newPipeline wires a parsed-request/response cycle onto t using routes for
// URI dispatch. onDispatch, if non-nil, observes every completed
// request/response cycle for metrics.
func newPipeline(t transport, pool *buffer.Pool, routes map[string]Handler, log *liblog.Logger, onDispatch func(string, int, int)) *Pipeline {
	return &Pipeline{
		t: t,
		log: log,
		pool: pool,
		routes: routes,
		state: stateRequestStart,
		req: httpmsg.NewRequest(),
		resp: httpmsg.NewResponse(),
		onDispatch: onDispatch,
	}
}

// Start arms the persistent receive that drives the whole pipeline.
func (p *Pipeline) Start() liberr.Error {
	return p.t.RecvPersistent(p.onRecv)
}

func (p *Pipeline) onRecv(buf *buffer.NetBuffer) {
	p.capacity = buf.Capacity()
	data := append(p.pending, buf.ReadableSlice()...)
	p.pending = nil
	p.feed(data)
}

// feed runs the request-start/headers/body parse loop over data, a
// pipelined connection's buffer possibly holding more than one request.
// Bytes left over once a full request is parsed (the start of the next
// pipelined request) are stashed in p.pending and re-fed once the current
// response finishes sending, rather than dropped — the reactor may not
// report new read-readiness if the peer already wrote everything at once.
func (p *Pipeline) feed(data []byte) {
	for {
		switch p.state {
		case stateRequestStart:
			req, consumed, result, err := httpmsg.ParseRequestLine(data, p.capacity)
			if err != nil {
				p.sendError(err)
				return
			}
			if result == httpmsg.ParseNeedMore {
				p.pending = append(p.pending, data...)
				return
			}
			p.req = req
			data = data[consumed:]
			p.state = stateRequestHeaders

		case stateRequestHeaders:
			off := 0
			for {
				next, done, result, err := httpmsg.ParseHeaderLine(data, off, p.req.Headers, p.capacity)
				if err != nil {
					p.sendError(err)
					return
				}
				if result == httpmsg.ParseNeedMore {
					p.pending = append(p.pending, data[off:]...)
					return
				}
				off = next
				if done {
					break
				}
			}
			data = data[off:]
			p.state = stateMessageBody

		case stateMessageBody:
			p.handleBody(data)
			p.state = stateResponseSend
			p.dispatchResponse()
			return // dispatchResponse drives the reply asynchronously

		default:
			return
		}
	}
}

func (p *Pipeline) handleBody(rest []byte) {
	switch p.req.Method {
	case httpmsg.GET, httpmsg.HEAD:
		// No body: whatever is left in rest is the start of the next
		// pipelined request, carried over past the response send.
		p.req.Body = nil
		p.req.BodyMode = httpmsg.BodyIgnore
		if len(rest) > 0 {
			p.pending = append(p.pending, rest...)
		}
	default:
		// : body beyond the receive buffer is not defined by
		// the source; the handler sees whatever arrived in this delivery.
		p.req.Body = rest
		p.req.BodyMode = httpmsg.BodyRead
	}
}

func (p *Pipeline) dispatchResponse() {
	p.resp.Reset()
	p.resp.MinorVers = p.req.MinorVers

	closeWanted := p.wantsClose()
	p.resp.SetCloseConnection(closeWanted)
	if !closeWanted && p.req.MinorVers == 0 {
		// HTTP/1.0 keep-alive is opt-in, so the reply confirms the token.
		p.resp.Headers.Set("Connection", "Keep-Alive")
	}

	h, ok := p.routes[p.req.URI]
	if !ok {
		p.resp.WriteHeader(liberr.CodeNotFound)
	} else {
		h(p.req, p.resp)
	}

	suppressBody := p.req.Method == httpmsg.HEAD
	built := p.resp.Build(suppressBody)

	if p.onDispatch != nil {
		p.onDispatch(p.req.Method.String(), p.resp.Status.Int(), p.resp.SentBytes())
	}

	status := p.resp.Status.Int()
	sentBytes := p.resp.SentBytes()

	p.t.CancelRecv()
	err := p.t.SendGathered(built.Build(), func() {
		if p.log != nil {
			p.log.Debug("httpserver: response sent").Field("status", status).Field("bytes", sentBytes).Log()
		}
		p.onResponseSent()
	})
	if err != nil {
		p.log.Error("httpserver: send failed").Field("err", err.Error()).Log()
	}
}

// wantsClose applies seed scenarios: HTTP/1.1 defaults to
// keep-alive unless the request set Connection: close; HTTP/1.0 defaults
// to close unless the legacy Connection: Keep-Alive token is present.
func (p *Pipeline) wantsClose() bool {
	conn := p.req.Headers.Get("Connection")
	switch p.req.MinorVers {
	case 1:
		return equalFoldTrim(conn, "close")
	default:
		return !equalFoldTrim(conn, "keep-alive")
	}
}

func equalFoldTrim(s, target string) bool {
	s = trimAndLower(s)
	return s == target
}

func trimAndLower(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	s = s[i:j]
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

func (p *Pipeline) onResponseSent() {
	if p.resp.CloseConnection() {
		p.state = stateClosed
		p.t.Close()
		return
	}
	p.req.Reset()
	p.state = stateRequestStart
	_ = p.t.RecvPersistent(p.onRecv)

	if len(p.pending) > 0 {
		// A pipelined request already arrived in the same socket read that
		// completed this one; process it now rather than waiting for the
		// reactor to report readiness that may never come again.
		data := p.pending
		p.pending = nil
		p.feed(data)
	}
}

func (p *Pipeline) sendError(err liberr.Error) {
	if p.log != nil {
		p.log.Warn("httpserver: request parse error").Field("code", err.Code()).Field("err", err.Error()).Log()
	}

	p.resp.Reset()
	p.resp.MinorVers = 1
	p.resp.SetCloseConnection(true)
	p.resp.WriteHeader(err.Code())
	built := p.resp.Build(false)

	p.t.CancelRecv()
	_ = p.t.SendGathered(built.Build(), func() {
		p.state = stateClosed
		p.t.Close()
	})
}
