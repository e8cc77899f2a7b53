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

// Package reactor implements the single-threaded readiness loop of 
// §4.1: one thread blocks on kernel readiness notifications for a set of
// file descriptors, dispatches per-fd handlers, and drains a cross-thread
// task queue before each dispatch pass.
//
// nabbar-golib and the wider ecosystem both pull in
// golang.org/x/sys for low-level POSIX primitives (docker-compose's go.mod
// requires it directly for process/signal handling; nabbar-golib requires
// it for terminal/file-descriptor work). Neither carries an epoll reactor
// of its own — calls this the hardest engineering in the
// repository, and nothing in the pack implements it, so this package is
// grounded on the epoll(7) readiness primitive directly via
// golang.org/x/sys/unix, the same foundation every real Go event loop in
// the wider retrieval pack (e.g. smux/kcptun-adjacent transports) is built on.
package reactor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	liberr "github.com/sabouaram/evhttp/pkg/errors"
)

// Interest is a bitmask of readiness conditions a registration cares about.
type Interest uint32

const (
	Read Interest = 1 << iota
	Write
)

// Handler is invoked when the kernel reports readiness intersecting the
// registration's current interest mask. The mask passed in is the
// kernel-reported readiness, already gated against the current interest
// (edge-case policy: never trust raw kernel bits alone).
type Handler func(ready Interest)

// Token identifies a registration. It is the registered file descriptor,
// so each fd has at most one registration.
type Token int

type registration struct {
	fd int
	interest Interest
	handler Handler
}

// Reactor is the single-threaded readiness loop.
type Reactor struct {
	epfd int

	mu sync.Mutex
	regs map[int]*registration
	tasks []func()
	taskBuf []func()

	wakeR, wakeW int // self-pipe for cross-thread Wake()

	stopped atomic.Bool
}

// New creates a Reactor backed by a fresh epoll instance and a self-pipe
// used by Wake() to interrupt an in-progress EpollWait.
func New() (*Reactor, liberr.Error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, liberr.Wrap(liberr.CodeTransport, "epoll_create1 failed", err)
	}

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		_ = unix.Close(epfd)
		return nil, liberr.Wrap(liberr.CodeTransport, "pipe2 failed", err)
	}

	r := &Reactor{
		epfd: epfd,
		regs: make(map[int]*registration),
		wakeR: fds[0],
		wakeW: fds[1],
	}

	if e := r.epollAdd(r.wakeR, Read); e != nil {
		_ = unix.Close(epfd)
		return nil, e
	}

	return r, nil
}

func (r *Reactor) epollAdd(fd int, interest Interest) liberr.Error {
	ev := unix.EpollEvent{Events: interestToEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return liberr.Wrap(liberr.CodeTransport, "epoll_ctl add failed", err)
	}
	return nil
}

func interestToEvents(i Interest) uint32 {
	var e uint32
	if i&Read != 0 {
		e |= unix.EPOLLIN
	}
	if i&Write != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func eventsToInterest(e uint32) Interest {
	var i Interest
	if e&unix.EPOLLIN != 0 {
		i |= Read
	}
	if e&unix.EPOLLOUT != 0 {
		i |= Write
	}
	return i
}

// Register adds fd to the readiness set with the given initial interest and
// handler, returning a Token for later ModifyInterest/Unregister calls.
func (r *Reactor) Register(fd int, initial Interest, h Handler) (Token, liberr.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == nil {
		return 0, liberr.New(liberr.CodeInvalidArgument, "reactor: nil handler")
	}

	reg := &registration{fd: fd, interest: initial, handler: h}
	r.regs[fd] = reg

	ev := unix.EpollEvent{Events: interestToEvents(initial), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		delete(r.regs, fd)
		return 0, liberr.Wrap(liberr.CodeTransport, "epoll_ctl add failed", err)
	}

	return Token(fd), nil
}

// ModifyInterest atomically updates the interest mask for an existing registration.
func (r *Reactor) ModifyInterest(tok Token, mask Interest) liberr.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[int(tok)]
	if !ok {
		return liberr.New(liberr.CodeInvalidArgument, "reactor: unknown token")
	}
	reg.interest = mask

	ev := unix.EpollEvent{Events: interestToEvents(mask), Fd: int32(tok)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(tok), &ev); err != nil {
		return liberr.Wrap(liberr.CodeTransport, "epoll_ctl mod failed", err)
	}
	return nil
}

// Unregister removes a registration. Idempotent: unregistering an unknown
// token is a no-op, matching.
func (r *Reactor) Unregister(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.regs[int(tok)]; !ok {
		return
	}
	delete(r.regs, int(tok))
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(tok), nil)
}

// Wake causes an in-progress or upcoming RunUntil wait to return promptly.
// Safe to call from any goroutine (cross-thread surfaces).
func (r *Reactor) Wake() {
	var b [1]byte
	_, _ = unix.Write(r.wakeW, b[:])
}

// Post enqueues a task to run on the reactor thread before the next
// dispatch pass, then wakes the reactor. This is how pkg/tlsconn's worker
// goroutines hand ciphertext, decrypted records and errors back to the
// single-threaded world. (Server.Stop does not post; it sets a flag and
// calls Wake.)
func (r *Reactor) Post(task func()) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
	r.Wake()
}

func (r *Reactor) drainTasks() {
	r.mu.Lock()
	if len(r.tasks) == 0 {
		r.mu.Unlock()
		return
	}
	r.taskBuf, r.tasks = r.tasks, r.taskBuf[:0]
	pending := r.taskBuf
	r.mu.Unlock()

	for _, t := range pending {
		t()
	}
}

func (r *Reactor) drainWakePipe() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// RunUntil runs the reactor loop until stop reports true. Each iteration:
// wait for readiness, drain the cross-thread task queue, then dispatch
// ready handlers gated against their current interest mask.
func (r *Reactor) RunUntil(stop func() bool) liberr.Error {
	events := make([]unix.EpollEvent, 128)

	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return liberr.Wrap(liberr.CodeTransport, "epoll_wait failed", err)
		}

		r.drainTasks()

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.wakeR {
				r.drainWakePipe()
				continue
			}

			r.mu.Lock()
			reg, ok := r.regs[fd]
			r.mu.Unlock()
			if !ok {
				continue // stale readiness bit for an unregistered fd
			}

			ready := eventsToInterest(events[i].Events) & reg.interest
			if ready == 0 {
				continue
			}
			reg.handler(ready)
		}

		if stop() {
			return nil
		}
	}
}

// Close releases the epoll fd and self-pipe. Not idempotent-safe to call
// twice; callers call it exactly once after RunUntil returns.
func (r *Reactor) Close() {
	_ = unix.Close(r.epfd)
	_ = unix.Close(r.wakeR)
	_ = unix.Close(r.wakeW)
}
