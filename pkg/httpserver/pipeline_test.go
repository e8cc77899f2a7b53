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
	"bytes"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/evhttp/pkg/buffer"
	"github.com/sabouaram/evhttp/pkg/httpmsg"
	liblog "github.com/sabouaram/evhttp/pkg/logger"
	"github.com/sabouaram/evhttp/pkg/netconn"
	"github.com/sabouaram/evhttp/pkg/reactor"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

// testHarness drives a single Pipeline over a socketpair, letting tests
// write raw request bytes on the peer fd and read raw response bytes back,
// exactly as end-to-end scenarios describe.
type testHarness struct {
	t *testing.T
	peer int
	rx *reactor.Reactor
	stop atomic.Bool
}

func newHarness(t *testing.T, routes map[string]Handler) *testHarness {
	t.Helper()
	rx, err := reactor.New()
	require.Nil(t, err)

	pool := buffer.NewPool(8, 256)
	fdServer, fdPeer := socketpair(t)

	nbc, nerr := netconn.New(fdServer, rx, pool, nil)
	require.Nil(t, nerr)

	h := &testHarness{t: t, peer: fdPeer, rx: rx}

	log := liblog.New("test", liblog.ErrorLevel, nil)
	p := newPipeline(plainTransport{c: nbc}, pool, routes, log, nil)
	require.Nil(t, p.Start())

	done := make(chan struct{})
	go func() {
		_ = rx.RunUntil(h.stop.Load)
		close(done)
	}()
	t.Cleanup(func() {
		h.stop.Store(true)
		rx.Wake()
		<-done
		rx.Close()
	})

	return h
}

func (h *testHarness) write(s string) {
	_, err := unix.Write(h.peer, []byte(s))
	require.NoError(h.t, err)
}

// readResponse polls the peer fd until no more bytes arrive for a short
// quiet period, then returns everything read (one or more responses).
func (h *testHarness) readResponse() string {
	h.t.Helper()
	var out bytes.Buffer
	deadline := time.Now().Add(2 * time.Second)
	buf := make([]byte, 4096)
	quiet := 0
	for time.Now().Before(deadline) {
		n, err := unix.Read(h.peer, buf)
		if err == unix.EAGAIN || n == 0 {
			if out.Len() > 0 {
				quiet++
				if quiet > 3 {
					return out.String()
				}
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		require.NoError(h.t, err)
		out.Write(buf[:n])
		quiet = 0
	}
	return out.String()
}

func TestPipeline_BareGET_404(t *testing.T) {
	h := newHarness(t, map[string]Handler{})
	h.write("GET / HTTP/1.1\r\n\r\n")

	resp := h.readResponse()
	require.True(t, strings.HasPrefix(resp, "HTTP/1.1 404, Not Found\r\n"), resp)
	require.Contains(t, resp, "Content-Length: 0\r\n")
}

func TestPipeline_PipelinedGETx2(t *testing.T) {
	h := newHarness(t, map[string]Handler{})
	h.write("GET / HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\n\r\n")

	resp := h.readResponse()
	count := strings.Count(resp, "HTTP/1.1 404, Not Found\r\n")
	require.Equal(t, 2, count, resp)
}

func TestPipeline_ExplicitClose(t *testing.T) {
	h := newHarness(t, map[string]Handler{})
	h.write("GET / HTTP/1.1\r\nconnection: close \r\n\r\n")

	resp := h.readResponse()
	require.Contains(t, resp, "Connection: close\r\n")

	// A further read must observe EOF (peer closed).
	time.Sleep(50 * time.Millisecond)
	var buf [16]byte
	n, err := unix.Read(h.peer, buf[:])
	require.True(t, n == 0 || err != nil)
}

func TestPipeline_LegacyKeepAlive(t *testing.T) {
	h := newHarness(t, map[string]Handler{})
	h.write("GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n")

	resp := h.readResponse()
	require.True(t, strings.HasPrefix(resp, "HTTP/1.0 404, Not Found\r\n"), resp)
	require.Contains(t, resp, "Connection: Keep-Alive\r\n")
}

func TestPipeline_HeaderContinuation(t *testing.T) {
	var got string
	h := newHarness(t, map[string]Handler{
		"/echo-header": func(req *httpmsg.Request, resp *httpmsg.Response) {
			got = req.Headers.Get("Hello")
			resp.WriteHeader(200)
		},
	})
	h.write("GET /echo-header HTTP/1.1\r\nhello: world\r\n hid!\r\n\r\n")
	resp := h.readResponse()
	require.True(t, strings.HasPrefix(resp, "HTTP/1.1 200, OK\r\n"), resp)
	require.Equal(t, "world hid!", got)
}
