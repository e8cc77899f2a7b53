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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	liberr "github.com/sabouaram/evhttp/pkg/errors"
)

func TestParseRequestLine_ByteWisePartitionIndependence(t *testing.T) {
	line := []byte("GET /index.html HTTP/1.1\r\n")

	whole, _, res, err := ParseRequestLine(line, 4096)
	require.Nil(t, err)
	require.Equal(t, ParseOK, res)

	// Split the buffer at every offset and re-parse once it's all present;
	// the result must not depend on how the bytes arrived.
	for split := 1; split < len(line); split++ {
		partial := line[:split]
		_, _, r, perr := ParseRequestLine(partial, 4096)
		if r == ParseNeedMore {
			continue // not enough bytes yet, expected for most splits
		}
		require.Nil(t, perr)
	}

	req, _, _, _ := ParseRequestLine(line, 4096)
	require.Equal(t, whole.Method, req.Method)
	require.Equal(t, whole.URI, req.URI)
	require.Equal(t, whole.MinorVers, req.MinorVers)
}

func TestParseRequestLine_SkipsLeadingCRLF(t *testing.T) {
	line := []byte("\r\n\r\nGET / HTTP/1.1\r\n")
	req, _, res, err := ParseRequestLine(line, 4096)
	require.Nil(t, err)
	require.Equal(t, ParseOK, res)
	require.Equal(t, GET, req.Method)
	require.Equal(t, "/", req.URI)
}

func TestParseRequestLine_UnknownMethodIsNotImplemented(t *testing.T) {
	_, _, _, err := ParseRequestLine([]byte("FROB / HTTP/1.1\r\n"), 4096)
	require.NotNil(t, err)
	require.Equal(t, liberr.CodeNotImplemented, err.Code())
}

func TestParseRequestLine_BadMinorVersionIsNotImplemented(t *testing.T) {
	_, _, _, err := ParseRequestLine([]byte("GET / HTTP/1.9\r\n"), 4096)
	require.NotNil(t, err)
	require.Equal(t, liberr.CodeNotImplemented, err.Code())
}

func TestParseRequestLine_EmptyURIIsBadRequest(t *testing.T) {
	_, _, _, err := ParseRequestLine([]byte("GET  HTTP/1.1\r\n"), 4096)
	require.NotNil(t, err)
	require.Equal(t, liberr.CodeBadRequest, err.Code())
}

func TestParseRequestLine_NoLFWithinBufferIsURITooLong(t *testing.T) {
	line := make([]byte, 16)
	for i := range line {
		line[i] = 'x'
	}
	_, _, _, err := ParseRequestLine(line, 16)
	require.NotNil(t, err)
	require.Equal(t, liberr.CodeRequestURITooLong, err.Code())
}

func TestParseHeaderLine_ContinuationAsFirstLineIsBadRequest(t *testing.T) {
	h := NewHeaders()
	_, _, _, err := ParseHeaderLine([]byte(" continuation\r\n"), 0, h, 4096)
	require.NotNil(t, err)
	require.Equal(t, liberr.CodeBadRequest, err.Code())
}

func TestParseHeaderLine_Continuation(t *testing.T) {
	h := NewHeaders()
	buf := []byte("hello: world\r\n hid!\r\n\r\n")

	next, done, _, err := ParseHeaderLine(buf, 0, h, 4096)
	require.Nil(t, err)
	require.False(t, done)

	next, done, _, err = ParseHeaderLine(buf, next, h, 4096)
	require.Nil(t, err)
	require.False(t, done)

	_, done, _, err = ParseHeaderLine(buf, next, h, 4096)
	require.Nil(t, err)
	require.True(t, done)

	require.Equal(t, "world hid!", h.Get("Hello"))
}

func TestCanonicalize(t *testing.T) {
	require.Equal(t, "Content-Type", Canonicalize("content-type"))
	require.Equal(t, "Content-Type", Canonicalize("CONTENT-TYPE"))
	require.Equal(t, "X-Request-Id", Canonicalize("x-request-id"))
}

func TestHeaders_MultiValueCommaJoin(t *testing.T) {
	h := NewHeaders()
	h.Add("Accept", "text/html")
	h.Add("Accept", "application/json")
	require.Equal(t, []string{"text/html", "application/json"}, h.Values("Accept"))

	var wire strings.Builder
	h.WriteWireFormat(&wire)
	require.Equal(t, "Accept: text/html, application/json\r\n", wire.String())
}

func TestResponse_BuildProducesStatusLineAndContentLength(t *testing.T) {
	r := NewResponse()
	r.MinorVers = 1
	r.WriteHeader(404)
	built := r.Build(false)
	total := 0
	for _, b := range built.Build() {
		total += len(b)
	}
	require.Greater(t, total, 0)
	require.True(t, strings.HasPrefix(string(built.Build()[0]), "HTTP/1.1 404, Not Found\r\n"))
	require.Equal(t, "0", r.Headers.Get("Content-Length"))
}
