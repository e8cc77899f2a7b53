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
	"strconv"
	"strings"

	liberr "github.com/sabouaram/evhttp/pkg/errors"
)

// BodyMode selects how the pipeline treats the bytes following the headers.
type BodyMode int

const (
	BodyIgnore BodyMode = iota
	BodyRead
	BodyCopy
)

// Request is the parsed request line plus headers. Body is
// whatever of the request payload fit in the connection's in-buffer; see
// SPEC_FULL.md / DESIGN.md for the open question on bodies larger than one
// buffer.
type Request struct {
	Method Method
	URI string
	MinorVers int // 0 or 1, i.e. HTTP/1.0 or HTTP/1.1
	Headers *Headers
	Body []byte
	BodyMode BodyMode
}

// NewRequest allocates a Request with an empty Headers map, ready for Reset
// and reuse across a connection's lifetime.
func NewRequest() *Request {
	return &Request{Headers: NewHeaders()}
}

// Reset clears r for the next request on the same connection — one Request
// is reused across a connection's whole lifetime rather than reallocated.
func (r *Request) Reset() {
	r.Method = MethodUnknown
	r.URI = ""
	r.MinorVers = 0
	r.Headers.Reset()
	r.Body = nil
	r.BodyMode = BodyIgnore
}

// ParseResult reports how far scanLine-based scanning got.
type ParseResult int

const (
	ParseOK ParseResult = iota
	ParseNeedMore
)

// ParseRequestLine parses a request line: skip leading CRLFs, scan one
// line, tokenize into method/URI/version.
//
// buf is the unread bytes available so far; maxLineLen is the connection's
// buffer capacity (a request line that fills the whole buffer with no LF
// is RequestURITooLong, since it can never arrive complete).
func ParseRequestLine(buf []byte, maxLineLen int) (r *Request, consumed int, result ParseResult, err liberr.Error) {
	off := skipLeadingCRLF(buf)

	line, next, ok := scanLine(buf, off)
	if !ok {
		if len(buf)-off >= maxLineLen {
			return nil, 0, ParseOK, liberr.New(liberr.CodeRequestURITooLong, "httpmsg: request line exceeds buffer capacity")
		}
		return nil, off, ParseNeedMore, nil
	}

	methodTok, rest := scanWord(line, 0)
	uriTok, rest2 := scanWord(line, rest)
	versTok, _ := scanWord(line, rest2)

	if len(methodTok) == 0 {
		return nil, 0, ParseOK, liberr.New(liberr.CodeBadRequest, "httpmsg: empty request line")
	}
	m, known := ParseMethod(string(methodTok))
	if !known {
		return nil, 0, ParseOK, liberr.Newf(liberr.CodeNotImplemented, "httpmsg: unknown method %q", string(methodTok))
	}
	if len(versTok) == 0 && strings.HasPrefix(string(uriTok), "HTTP/") {
		// "GET  HTTP/1.1": the empty URI field vanishes into the separator
		// run, so the version token lands in the URI slot.
		uriTok = nil
	}
	if len(uriTok) == 0 {
		return nil, 0, ParseOK, liberr.New(liberr.CodeBadRequest, "httpmsg: empty request URI")
	}

	minor, verr := parseHTTPVersion(versTok)
	if verr != nil {
		return nil, 0, ParseOK, verr
	}

	req := NewRequest()
	req.Method = m
	req.URI = string(uriTok)
	req.MinorVers = minor

	return req, next, ParseOK, nil
}

// parseHTTPVersion requires the token to start "HTTP/1." with a minor part
// of 0 or 1.
func parseHTTPVersion(tok []byte) (int, liberr.Error) {
	const prefix = "HTTP/1."
	s := string(tok)
	if !strings.HasPrefix(s, prefix) {
		return 0, liberr.Newf(liberr.CodeNotImplemented, "httpmsg: unsupported HTTP version %q", s)
	}
	minorStr := s[len(prefix):]
	minor, cerr := strconv.Atoi(minorStr)
	if cerr != nil || (minor != 0 && minor != 1) {
		return 0, liberr.Newf(liberr.CodeNotImplemented, "httpmsg: unsupported HTTP minor version %q", s)
	}
	return minor, nil
}

// ParseHeaderLine advances through one header line of the headers section.
// headersDone reports whether the blank-line terminator was reached.
func ParseHeaderLine(buf []byte, off int, h *Headers, maxLineLen int) (next int, headersDone bool, result ParseResult, err liberr.Error) {
	line, nx, ok := scanLine(buf, off)
	if !ok {
		if len(buf)-off >= maxLineLen {
			return off, false, ParseOK, liberr.New(liberr.CodeRequestURITooLong, "httpmsg: header line exceeds buffer capacity")
		}
		return off, false, ParseNeedMore, nil
	}

	if len(line) == 0 {
		return nx, true, ParseOK, nil
	}

	if isSP(line[0]) {
		if !h.appendLastValue(string(trimSP(line))) {
			return off, false, ParseOK, liberr.New(liberr.CodeBadRequest, "httpmsg: continuation line with no preceding header")
		}
		return nx, false, ParseOK, nil
	}

	colon := -1
	for i, c := range line {
		if c == ':' {
			colon = i
			break
		}
	}
	if colon < 0 {
		return off, false, ParseOK, liberr.New(liberr.CodeBadRequest, "httpmsg: header line missing ':'")
	}

	key := string(line[:colon])
	value := string(trimSP(line[colon+1:]))
	h.Add(key, value)

	return nx, false, ParseOK, nil
}
