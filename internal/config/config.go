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

// Package config implements the configuration surface of : listen
// address, per-connection buffer size, pool capacity, and optional TLS
// certificate pair. Grounded on nabbar-golib/config and
// nabbar-golib/httpserver/config.go's viper-backed unmarshal pattern,
// trimmed to this module's single-server scope (no component registry,
// no hot reload).
package config

import (
	"time"

	"github.com/spf13/viper"

	liberr "github.com/sabouaram/evhttp/pkg/errors"
)

// Config is the unmarshal target for one server's settings.
type Config struct {
	Listen string `mapstructure:"listen"`
	BufferSize int `mapstructure:"buffer_size"`
	PoolSize int `mapstructure:"pool_size"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey string `mapstructure:"tls_key"`
	LogLevel string `mapstructure:"log_level"`
	IdleTick time.Duration `mapstructure:"idle_tick"`
}

// Defaults matches named defaults (4096-byte buffers, 128-entry
// pool) plus this module's own ambient-stack choices (info-level logging).
func Defaults() Config {
	return Config{
		Listen: ":8080",
		BufferSize: 4096,
		PoolSize: 128,
		LogLevel: "info",
		IdleTick: 0,
	}
}

// Load reads configuration from v (already pointed at a file/env/flags by
// the caller, per nabbar-golib's "caller owns the *viper.Viper" convention)
// into a Config seeded with Defaults.
func Load(v *viper.Viper) (Config, liberr.Error) {
	cfg := Defaults()
	if v == nil {
		return cfg, nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, liberr.Wrap(liberr.CodeInvalidArgument, "config: unmarshal failed", err)
	}
	return cfg, nil
}

// UsesTLS reports whether both halves of a certificate pair were configured.
func (c Config) UsesTLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}
