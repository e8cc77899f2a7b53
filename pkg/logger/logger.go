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

// Package logger is a thin, logrus-backed structured logger modeled on
// nabbar-golib/logger: a Level type, a Fields map, and an Entry builder that
// is filled in with field/error calls and emitted with Log(). Grounded on
// nabbar-golib/logger/logger.go and logger/log.go, reduced to what the
// reactor, connection, TLS and HTTP-pipeline components need: they all run
// on a single reactor thread, so none of nabbar-golib's goroutine-safe
// hook/closer machinery is needed here.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the component-facing logging surface.
type Logger struct {
	base *logrus.Logger
	name string
}

// New creates a Logger writing to w (os.Stdout if nil) at the given level,
// tagging every entry with a component name (e.g. "reactor", "tlsconn").
func New(name string, level Level, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.logrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{base: l, name: name}
}

// Named returns a Logger sharing the same backing logrus instance under a
// different component name, the way a connection derives a per-connection
// logger from the server's logger.
func (l *Logger) Named(name string) *Logger {
	return &Logger{base: l.base, name: name}
}

func (l *Logger) newEntry(level Level, message string) Entry {
	return &entry{l: l, level: level, message: message}
}

func (l *Logger) Debug(message string) Entry { return l.newEntry(DebugLevel, message) }
func (l *Logger) Info(message string) Entry { return l.newEntry(InfoLevel, message) }
func (l *Logger) Warn(message string) Entry { return l.newEntry(WarnLevel, message) }
func (l *Logger) Error(message string) Entry { return l.newEntry(ErrorLevel, message) }
func (l *Logger) Fatal(message string) Entry { return l.newEntry(FatalLevel, message) }

func (l *Logger) emit(level Level, message string, fields Fields, errs []error) {
	f := logrus.Fields{"component": l.name}
	for k, v := range fields {
		f[k] = v
	}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		f["errors"] = msgs
	}
	l.base.WithFields(f).Log(level.logrus(), message)
}
