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

import "github.com/prometheus/client_golang/prometheus"

// metrics collects the counters a reactor-driven server cannot get for free
// from net/http's instrumentation middleware. Grounded on
// prometheus/client_golang's registry/collector pattern as used across the
// retrieval pack's services; each Server owns its own registry so two
// servers in one process never collide on metric names.
type metrics struct {
	registry      *prometheus.Registry
	requestsTotal *prometheus.CounterVec
	responseBytes prometheus.Histogram
	activeConns   prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()

	m := &metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evhttp_requests_total",
			Help: "Requests dispatched, labeled by method and response status.",
		}, []string{"method", "status"}),
		responseBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evhttp_response_bytes",
			Help:    "Size in bytes of the serialized response (status line, headers, body).",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evhttp_active_connections",
			Help: "Connections currently installed in the server's live set.",
		}),
	}

	reg.MustRegister(m.requestsTotal, m.responseBytes, m.activeConns)
	return m
}

func (m *metrics) observeResponse(method string, status int, sentBytes int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, statusLabel(status)).Inc()
	m.responseBytes.Observe(float64(sentBytes))
}

func (m *metrics) connOpened() {
	if m != nil {
		m.activeConns.Inc()
	}
}

func (m *metrics) connClosed() {
	if m != nil {
		m.activeConns.Dec()
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// Registry exposes the server's metric registry so a Handler can gather it
// and encode it for a /metrics route (cmd/evhttp-server does this with
// expfmt's text format).
func (s *Server) Registry() *prometheus.Registry {
	return s.metrics.registry
}
