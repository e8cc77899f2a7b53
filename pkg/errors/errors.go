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

package errors

import (
	"fmt"
	"strings"
)

// Error is a coded error with an optional parent chain, used instead of bare
// fmt.Errorf so that callers at the HTTP/TLS/connection boundary can switch
// on Code() without string matching. Grounded on nabbar-golib/errors
// (errors.go, return.go), trimmed of the gin-aborting helpers: this module
// is itself the HTTP layer, it never sits behind gin.
type Error interface {
	error

	// Code returns the classification for this error.
	Code() CodeError

	// AddParent chains a lower-level cause onto this error, innermost last.
	AddParent(err error) Error

	// Parents returns the chained causes, in the order they were added.
	Parents() []error
}

type codedError struct {
	code    CodeError
	message string
	parents []error
}

// New creates an Error with the given classification and message.
func New(code CodeError, message string) Error {
	return &codedError{code: code, message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code CodeError, format string, args ...interface{}) Error {
	return &codedError{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with the given classification whose single parent
// is the supplied cause. A nil cause yields an Error with no parent (the
// same as New).
func Wrap(code CodeError, message string, cause error) Error {
	if cause == nil {
		return New(code, message)
	}
	e := &codedError{code: code, message: message}
	e.parents = append(e.parents, cause)
	return e
}

func (e *codedError) Code() CodeError { return e.code }

func (e *codedError) AddParent(err error) Error {
	if err != nil {
		e.parents = append(e.parents, err)
	}
	return e
}

func (e *codedError) Parents() []error { return e.parents }

func (e *codedError) Error() string {
	if len(e.parents) == 0 {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	parts := make([]string, 0, len(e.parents))
	for _, p := range e.parents {
		parts = append(parts, p.Error())
	}
	return fmt.Sprintf("[%s] %s: %s", e.code, e.message, strings.Join(parts, "; "))
}

// Unwrap exposes the first parent so errors.Is/As can walk the chain.
func (e *codedError) Unwrap() error {
	if len(e.parents) == 0 {
		return nil
	}
	return e.parents[0]
}

// CodeOf returns the CodeError of err if it implements Error, else UnknownError.
func CodeOf(err error) CodeError {
	if e, ok := err.(Error); ok {
		return e.Code()
	}
	return UnknownError
}
