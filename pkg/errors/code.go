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

// Package errors implements a small coded-error type used across the
// connection, TLS and HTTP layers. Codes mirror HTTP status codes where one
// applies; transport-level failures use the 5xx range.
package errors

import "strconv"

// CodeError is a numeric classification for an Error, shaped like an HTTP
// status code but also used for non-HTTP failures (transport, TLS, argument).
type CodeError uint16

const (
	UnknownError CodeError = 0

	// Invalid HTTP request classifications ().
	CodeBadRequest CodeError = 400
	CodeNotFound CodeError = 404
	CodeRequestURITooLong CodeError = 414
	CodeNotImplemented CodeError = 501
	CodeInternal CodeError = 500

	// Non-HTTP classifications.
	CodeInvalidArgument CodeError = 600
	CodeTransport CodeError = 601
	CodePeerClosed CodeError = 602
	CodeTLSEngine CodeError = 603
	CodeTLSTask CodeError = 604
)

func (c CodeError) Uint16() uint16 { return uint16(c) }
func (c CodeError) Int() int { return int(c) }
func (c CodeError) String() string { return strconv.Itoa(c.Int()) }

// ReasonPhrase returns the RFC 2616 reason phrase for the codes listed in
// reasonPhrases (200, 400, 404, 414, 500, 501), and "Unknown" for any other
// code, HTTP-shaped or not.
func (c CodeError) ReasonPhrase() string {
	if p, ok := reasonPhrases[c]; ok {
		return p
	}
	return "Unknown"
}

var reasonPhrases = map[CodeError]string{
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
	414: "Request-URI Too Long",
	500: "Internal Server Error",
	501: "Not Implemented",
}
