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
	"crypto/tls"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/evhttp/pkg/buffer"
	liberr "github.com/sabouaram/evhttp/pkg/errors"
	liblog "github.com/sabouaram/evhttp/pkg/logger"
	"github.com/sabouaram/evhttp/pkg/netconn"
	"github.com/sabouaram/evhttp/pkg/reactor"
	"github.com/sabouaram/evhttp/pkg/tlsconn"
)

// Config collects the per-server settings of "Configuration
// surface". Zero values fall back to the defaults names.
type Config struct {
	Addr string
	BufferSize int // default 4096
	PoolSize int // default 128
	TLSConfig *tls.Config
}

const (
	defaultBufferSize = 4096
	defaultPoolSize = 128
)

// Server owns one listening socket, one reactor, one live-connection set,
// and the URI → handler routing table,.
type Server struct {
	cfg Config
	rx *reactor.Reactor
	pool *buffer.Pool
	log *liblog.Logger
	routes map[string]Handler
	metrics *metrics

	listenFd int
	tok reactor.Token

	mu sync.Mutex
	live map[*Pipeline]struct{}
	done bool
}

// NewServer wires a server with its own reactor and buffer pool.
func NewServer(cfg Config, log *liblog.Logger) (*Server, liberr.Error) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if log == nil {
		log = liblog.New("httpserver", liblog.InfoLevel, nil)
	}

	rx, err := reactor.New()
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg: cfg,
		rx: rx,
		pool: buffer.NewPool(cfg.PoolSize, cfg.BufferSize),
		log: log,
		routes: make(map[string]Handler),
		live: make(map[*Pipeline]struct{}),
		metrics: newMetrics(),
	}, nil
}

// Handle registers h for exact-match uri, routing rule.
func (s *Server) Handle(uri string, h Handler) {
	s.routes[uri] = h
}

// Listen opens the listening socket (TCP, non-blocking, SO_REUSEADDR) and
// registers it with the reactor,.
func (s *Server) Listen() liberr.Error {
	fd, err := listenTCP(s.cfg.Addr)
	if err != nil {
		return liberr.Wrap(liberr.CodeTransport, "httpserver: listen failed", err)
	}
	s.listenFd = fd

	tok, rerr := s.rx.Register(fd, reactor.Read, s.onAcceptable)
	if rerr != nil {
		_ = unix.Close(fd)
		return rerr
	}
	s.tok = tok
	return nil
}

func (s *Server) onAcceptable(reactor.Interest) {
	for {
		connFd, _, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			s.log.Warn("httpserver: accept failed").Field("err", err.Error()).Log()
			return
		}
		s.acceptConn(connFd)
	}
}

func (s *Server) acceptConn(fd int) {
	// A short connection ID disambiguates interleaved log lines from
	// concurrently live connections sharing one process's output.
	connID := uuid.New().String()[:8]
	connLog := s.log.Named("conn:" + connID)
	connLog.Info("httpserver: connection accepted").Field("fd", fd).Log()

	nbc, nerr := netconn.New(fd, s.rx, s.pool, connLog)
	if nerr != nil {
		_ = unix.Close(fd)
		return
	}

	var t transport
	if s.cfg.TLSConfig != nil {
		tc := tlsconn.New(nbc, s.rx, s.cfg.TLSConfig, true, connLog.Named("tls:"+connID))
		t = tlsTransport{c: tc}
	} else {
		t = plainTransport{c: nbc}
	}

	p := newPipeline(t, s.pool, s.routes, connLog.Named("http:"+connID), s.metrics.observeResponse)

	// Installed into the live set *before* Start, because Start may
	// immediately invoke callbacks.
	s.mu.Lock()
	s.live[p] = struct{}{}
	s.mu.Unlock()
	s.metrics.connOpened()

	t.SetOnClose(func() { s.retire(p) })
	t.SetOnError(func(string) { s.retire(p) })

	if tc, ok := t.(tlsTransport); ok {
		if serr := tc.c.Start(); serr != nil {
			s.retire(p)
			return
		}
	}

	if serr := p.Start(); serr != nil {
		s.retire(p)
	}
}

func (s *Server) retire(p *Pipeline) {
	s.mu.Lock()
	_, wasLive := s.live[p]
	delete(s.live, p)
	s.mu.Unlock()
	if wasLive {
		s.metrics.connClosed()
	}
}

// Stop sets a done flag and wakes the reactor; the caller's Run loop, on
// waking, closes every live connection and the reactor. Thread-safe.
func (s *Server) Stop() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.rx.Wake()
}

// Run blocks the calling goroutine in the reactor loop until Stop is
// called, then tears down all live connections.
func (s *Server) Run() liberr.Error {
	rerr := s.rx.RunUntil(s.isDone)
	s.closeAll()
	return rerr
}

func (s *Server) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*Pipeline, 0, len(s.live))
	for p := range s.live {
		conns = append(conns, p)
	}
	s.live = make(map[*Pipeline]struct{})
	s.mu.Unlock()

	for _, p := range conns {
		p.t.Close()
	}
	s.rx.Unregister(s.tok)
	_ = unix.Close(s.listenFd)
	s.rx.Close()
}
