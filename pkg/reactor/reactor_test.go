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

package reactor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReactor_RegisterAndDispatchOnReadiness(t *testing.T) {
	rx, err := New()
	require.Nil(t, err)
	defer rx.Close()

	pr, pw := newPipe(t)

	var fired atomic.Bool
	var stop atomic.Bool

	_, regErr := rx.Register(pr, Read, func(ready Interest) {
		require.Equal(t, Read, ready)
		var buf [16]byte
		n, _ := unix.Read(pr, buf[:])
		require.Equal(t, "ping", string(buf[:n]))
		fired.Store(true)
		stop.Store(true)
	})
	require.Nil(t, regErr)

	done := make(chan struct{})
	go func() {
		_ = rx.RunUntil(stop.Load)
		close(done)
	}()

	_, _ = unix.Write(pw, []byte("ping"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reactor never dispatched the read-readiness handler")
	}

	require.True(t, fired.Load())
}

func TestReactor_PostRunsBeforeNextDispatch(t *testing.T) {
	rx, err := New()
	require.Nil(t, err)
	defer rx.Close()

	pr, pw := newPipe(t)
	var order []string
	var stop atomic.Bool

	_, regErr := rx.Register(pr, Read, func(ready Interest) {
		var buf [16]byte
		_, _ = unix.Read(pr, buf[:])
		order = append(order, "handler")
		stop.Store(true)
	})
	require.Nil(t, regErr)

	done := make(chan struct{})
	go func() {
		_ = rx.RunUntil(stop.Load)
		close(done)
	}()

	rx.Post(func() { order = append(order, "task") })
	_, _ = unix.Write(pw, []byte("x"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reactor never stopped")
	}

	require.Equal(t, []string{"task", "handler"}, order)
}

func TestReactor_UnregisterIsIdempotent(t *testing.T) {
	rx, err := New()
	require.Nil(t, err)
	defer rx.Close()

	pr, _ := newPipe(t)
	tok, regErr := rx.Register(pr, Read, func(Interest) {})
	require.Nil(t, regErr)

	rx.Unregister(tok)
	rx.Unregister(tok) // second call must not panic
}

func TestReactor_WakeUnblocksWait(t *testing.T) {
	rx, err := New()
	require.Nil(t, err)
	defer rx.Close()

	var stop atomic.Bool
	done := make(chan struct{})
	go func() {
		_ = rx.RunUntil(func() bool { return stop.Load() })
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	stop.Store(true)
	rx.Wake()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wake did not unblock RunUntil")
	}
}
