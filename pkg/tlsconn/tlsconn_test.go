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

package tlsconn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/evhttp/pkg/buffer"
	"github.com/sabouaram/evhttp/pkg/netconn"
	"github.com/sabouaram/evhttp/pkg/reactor"
)

// generateSelfSignedCert mirrors nabbar-golib's httpserver/testhelpers cert
// generator, trimmed to return an in-memory tls.Certificate (no temp files)
// since this test never shells out to openssl or touches disk.
func generateSelfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: nil}
}

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}

func TestTLSConn_HandshakeAndEcho(t *testing.T) {
	cert := generateSelfSignedCert(t)
	pool := buffer.NewPool(8, 4096)

	rx, err := reactor.New()
	require.Nil(t, err)

	var stop atomic.Bool
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

	fdServer, fdClient := socketpair(t)

	nbcServer, nerr := netconn.New(fdServer, rx, pool, nil)
	require.Nil(t, nerr)
	nbcClient, cerr := netconn.New(fdClient, rx, pool, nil)
	require.Nil(t, cerr)

	serverCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	clientCfg := &tls.Config{InsecureSkipVerify: true}

	server := New(nbcServer, rx, serverCfg, true, nil)
	client := New(nbcClient, rx, clientCfg, false, nil)
	require.Nil(t, server.Start())
	require.Nil(t, client.Start())

	echoed := make(chan string, 1)
	require.Nil(t, server.RecvPersistent(func(buf *buffer.NetBuffer) {
		msg := string(buf.ReadableSlice())
		_ = server.Send([]byte("echo:"+msg), nil)
	}))

	require.Nil(t, client.Recv(func(buf *buffer.NetBuffer) {
		echoed <- string(buf.ReadableSlice())
	}))

	require.Nil(t, client.Send([]byte("hello-tls"), nil))

	select {
	case msg := <-echoed:
		require.Equal(t, "echo:hello-tls", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("TLS handshake/echo round trip never completed")
	}

	require.Equal(t, StateActive, client.State())
}

func TestTLSConn_CloseIsIdempotent(t *testing.T) {
	cert := generateSelfSignedCert(t)
	pool := buffer.NewPool(4, 4096)

	rx, err := reactor.New()
	require.Nil(t, err)
	var stop atomic.Bool
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

	fdServer, fdClient := socketpair(t)
	nbcServer, _ := netconn.New(fdServer, rx, pool, nil)
	nbcClient, _ := netconn.New(fdClient, rx, pool, nil)
	t.Cleanup(nbcClient.Close)

	server := New(nbcServer, rx, &tls.Config{Certificates: []tls.Certificate{cert}}, true, nil)
	require.Nil(t, server.Start())

	server.Close()
	server.Close() // must not panic
	require.True(t, server.IsClosed())
}
