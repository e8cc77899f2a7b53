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

package main

import (
	"crypto/tls"
	"fmt"
	"os"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sabouaram/evhttp/internal/config"
	"github.com/sabouaram/evhttp/pkg/httpmsg"
	"github.com/sabouaram/evhttp/pkg/httpserver"
	liblog "github.com/sabouaram/evhttp/pkg/logger"
)

var version = "dev"

func main() {
	root := rootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "evhttp-server",
		Short: "A single-threaded, reactor-driven HTTP/1.x server.",
	}
	root.AddCommand(versionCommand(), serveCommand())
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func serveCommand() *cobra.Command {
	var (
		listen     string
		bufferSize int
		poolSize   int
		tlsCert    string
		tlsKey     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.SetDefault("listen", listen)
			v.SetDefault("buffer_size", bufferSize)
			v.SetDefault("pool_size", poolSize)
			v.SetDefault("tls_cert", tlsCert)
			v.SetDefault("tls_key", tlsKey)
			v.AutomaticEnv()

			cfg, cerr := config.Load(v)
			if cerr != nil {
				return cerr
			}

			log := liblog.New("evhttp-server", liblog.InfoLevel, nil)

			srvCfg := httpserver.Config{
				Addr:       cfg.Listen,
				BufferSize: cfg.BufferSize,
				PoolSize:   cfg.PoolSize,
			}
			if cfg.UsesTLS() {
				cert, lerr := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
				if lerr != nil {
					return lerr
				}
				srvCfg.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
			}

			srv, serr := httpserver.NewServer(srvCfg, log)
			if serr != nil {
				return serr
			}
			srv.Handle("/", func(req *httpmsg.Request, resp *httpmsg.Response) {
				resp.WriteHeader(200)
				resp.WriteString("ok")
			})
			srv.Handle("/metrics", metricsHandler(srv))

			if lerr := srv.Listen(); lerr != nil {
				return lerr
			}
			log.Info("server listening").Field("addr", cfg.Listen).Log()
			return srv.Run()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "listen address")
	cmd.Flags().IntVar(&bufferSize, "buffer-size", 4096, "per-connection buffer size")
	cmd.Flags().IntVar(&poolSize, "pool-size", 128, "buffer pool capacity")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "TLS certificate file (enables TLS)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "TLS key file (enables TLS)")

	return cmd
}

// metricsHandler renders srv's Prometheus registry in text exposition
// format, since this repository's Handler is request/response-oriented
// rather than an http.Handler that promhttp.HandlerFor could drive directly.
func metricsHandler(srv *httpserver.Server) httpserver.Handler {
	return func(req *httpmsg.Request, resp *httpmsg.Response) {
		families, err := srv.Registry().Gather()
		if err != nil {
			resp.WriteHeader(500)
			return
		}
		resp.WriteHeader(200)
		resp.Headers.Set("Content-Type", string(expfmt.FmtText))
		enc := expfmt.NewEncoder(&responseWriterAdapter{resp}, expfmt.FmtText)
		for _, mf := range families {
			_ = enc.Encode(mf)
		}
	}
}

// responseWriterAdapter lets expfmt.Encoder (an io.Writer consumer) write
// straight into a Response body.
type responseWriterAdapter struct{ resp *httpmsg.Response }

func (a *responseWriterAdapter) Write(p []byte) (int, error) {
	a.resp.Write(p)
	return len(p), nil
}
