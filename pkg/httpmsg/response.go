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

package httpmsg

import (
	"fmt"
	"strings"
	"time"

	"github.com/sabouaram/evhttp/pkg/buffer"
	liberr "github.com/sabouaram/evhttp/pkg/errors"
)

// Response is the status/headers/body model built incrementally by a
// handler and serialized by Build.
type Response struct {
	Status liberr.CodeError
	MinorVers int
	Headers *Headers
	body *buffer.Builder
	closeConn bool
	committed bool
	sentBytes int
}

// NewResponse allocates a Response with an empty Headers map and a fresh
// gather Builder for the body.
func NewResponse() *Response {
	return &Response{
		Headers: NewHeaders(),
		body: buffer.NewBuilder(),
	}
}

// Reset clears r for reuse on the next request-response cycle of the same
// connection.
func (r *Response) Reset() {
	r.Status = 0
	r.MinorVers = 1
	r.Headers.Reset()
	r.body.Reset()
	r.closeConn = false
	r.committed = false
	r.sentBytes = 0
}

// WriteHeader commits the status code at most once; later calls are no-ops.
func (r *Response) WriteHeader(status liberr.CodeError) {
	if r.committed {
		return
	}
	r.Status = status
	r.committed = true
}

// Write appends p to the body, implicitly committing status 200 if nothing
// has been committed yet.
func (r *Response) Write(p []byte) {
	if !r.committed {
		r.WriteHeader(liberr.CodeError(200))
	}
	r.body.WriteBytes(p)
}

// WriteString is Write for a string.
func (r *Response) WriteString(s string) {
	if !r.committed {
		r.WriteHeader(liberr.CodeError(200))
	}
	r.body.WriteString(s)
}

// SetCloseConnection governs whether Build emits Connection: close.
func (r *Response) SetCloseConnection(flag bool) { r.closeConn = flag }
func (r *Response) CloseConnection() bool { return r.closeConn }

// Build finalizes headers (Content-Length, optional Connection: close),
// prepends the status line, and returns the full wire-format gather list.
// suppressBody omits the body segment (HEAD requests).
func (r *Response) Build(suppressBody bool) *buffer.Builder {
	if !r.committed {
		r.WriteHeader(liberr.CodeError(404))
	}

	contentLen := r.body.TotalLen()
	r.Headers.Set("Content-Length", fmt.Sprintf("%d", contentLen))
	if !r.Headers.Has("Date") {
		// Date formatting is left to the standard library; this layer only
		// decides that every response carries one.
		r.Headers.Set("Date", time.Now().UTC().Format(time.RFC1123))
	}
	if r.closeConn {
		r.Headers.Set("Connection", "close")
	}

	var head strings.Builder
	head.WriteString(fmt.Sprintf("HTTP/1.%d %d, %s\r\n", r.MinorVers, r.Status.Int(), r.Status.ReasonPhrase()))
	r.Headers.WriteWireFormat(&head)
	head.WriteString("\r\n")

	if suppressBody {
		r.body.Reset()
	}

	ins := r.body.InsertFront()
	ins.Write([]byte(head.String()))
	ins.Release()

	r.sentBytes = r.body.TotalLen()
	return r.body
}

// SentBytes reports the byte count recorded at the moment of the last Build.
func (r *Response) SentBytes() int { return r.sentBytes }
