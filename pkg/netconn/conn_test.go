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

package netconn

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/evhttp/pkg/buffer"
	"github.com/sabouaram/evhttp/pkg/reactor"
)

// socketpair returns two connected, non-blocking AF_UNIX SOCK_STREAM fds:
// fdA is wrapped by the Conn under test, fdB is driven directly by the test
// to simulate the peer.
func socketpair(t *testing.T) (fdA, fdB int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() { _ = unix.Close(fds[1]) })
	return fds[0], fds[1]
}

func runReactor(t *testing.T, rx *reactor.Reactor, stop *atomic.Bool) chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = rx.RunUntil(stop.Load)
		close(done)
	}()
	t.Cleanup(func() {
		stop.Store(true)
		rx.Wake()
		<-done
		rx.Close()
	})
	return done
}

func newTestConn(t *testing.T) (*Conn, int, *reactor.Reactor, *atomic.Bool) {
	rx, err := reactor.New()
	require.Nil(t, err)

	pool := buffer.NewPool(4, 64)
	fdA, fdB := socketpair(t)

	c, cerr := New(fdA, rx, pool, nil)
	require.Nil(t, cerr)

	var stop atomic.Bool
	runReactor(t, rx, &stop)

	return c, fdB, rx, &stop
}

func TestConn_RecvOneShot(t *testing.T) {
	c, peer, _, stop := newTestConn(t)

	got := make(chan string, 1)
	err := c.Recv(func(buf *buffer.NetBuffer) {
		got <- string(buf.ReadableSlice())
	})
	require.Nil(t, err)

	_, werr := unix.Write(peer, []byte("hello"))
	require.NoError(t, werr)

	select {
	case msg := <-got:
		require.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("recv callback never fired")
	}
	stop.Store(true)
}

func TestConn_RecvPersistent_MultipleDeliveries(t *testing.T) {
	c, peer, _, stop := newTestConn(t)

	msgs := make(chan string, 4)
	err := c.RecvPersistent(func(buf *buffer.NetBuffer) {
		msgs <- string(buf.ReadableSlice())
	})
	require.Nil(t, err)

	_, _ = unix.Write(peer, []byte("one"))
	select {
	case m := <-msgs:
		require.Equal(t, "one", m)
	case <-time.After(2 * time.Second):
		t.Fatal("first delivery missing")
	}

	_, _ = unix.Write(peer, []byte("two"))
	select {
	case m := <-msgs:
		require.Equal(t, "two", m)
	case <-time.After(2 * time.Second):
		t.Fatal("persistent recv did not re-arm for a second delivery")
	}
	stop.Store(true)
}

func TestConn_Send_DrainsOutBuffer(t *testing.T) {
	c, peer, _, stop := newTestConn(t)

	c.OutBuffer().Advance(copy(c.OutBuffer().WritableSlice(), []byte("payload")))

	fired := make(chan struct{}, 1)
	err := c.Send(func() { fired <- struct{}{} })
	require.Nil(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("send callback never fired")
	}

	buf := make([]byte, 16)
	n, rerr := unix.Read(peer, buf)
	require.NoError(t, rerr)
	require.Equal(t, "payload", string(buf[:n]))
	stop.Store(true)
}

func TestConn_CancelRecv_Idempotent(t *testing.T) {
	c, _, _, stop := newTestConn(t)

	_ = c.Recv(func(*buffer.NetBuffer) {})
	prev := c.CancelRecv()
	require.NotNil(t, prev)

	again := c.CancelRecv()
	require.Nil(t, again)
	stop.Store(true)
}

func TestConn_Close_Idempotent(t *testing.T) {
	c, _, _, stop := newTestConn(t)
	c.Close()
	c.Close() // must not panic
	require.True(t, c.IsClosed())
	stop.Store(true)
}

func TestConn_PeerClose_FiresOnClose(t *testing.T) {
	c, peer, _, stop := newTestConn(t)

	closed := make(chan struct{}, 1)
	c.SetOnClose(func() { closed <- struct{}{} })
	_ = c.RecvPersistent(func(*buffer.NetBuffer) {})

	_ = unix.Close(peer)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("on_close never fired after peer close")
	}
	stop.Store(true)
}
