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

package httpmsg

import "strings"

// Headers is a canonicalizing multimap from header name to its ordered list
// of values.
type Headers struct {
	values map[string][]string
	order []string // first-seen canonical key order, for wire serialization
}

// NewHeaders returns an empty Headers map.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string][]string)}
}

// Canonicalize uppercases the first letter of s and every letter following
// a '-', lowercasing everything else (e.g. "content-length" -> "Content-Length").
func Canonicalize(s string) string {
	b := []byte(s)
	upperNext := true
	for i, c := range b {
		switch {
		case upperNext && c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		case !upperNext && c >= 'A' && c <= 'Z':
			b[i] = c - 'A' + 'a'
		}
		upperNext = c == '-'
	}
	return string(b)
}

// Add appends value to key's list, creating it if absent.
func (h *Headers) Add(key, value string) {
	ck := Canonicalize(key)
	if _, ok := h.values[ck]; !ok {
		h.order = append(h.order, ck)
	}
	h.values[ck] = append(h.values[ck], value)
}

// Set replaces key's value list with a single value.
func (h *Headers) Set(key, value string) {
	ck := Canonicalize(key)
	if _, ok := h.values[ck]; !ok {
		h.order = append(h.order, ck)
	}
	h.values[ck] = []string{value}
}

// Get returns the first value for key, or "" if absent.
func (h *Headers) Get(key string) string {
	vs := h.values[Canonicalize(key)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns all values for key, in insertion order.
func (h *Headers) Values(key string) []string {
	return h.values[Canonicalize(key)]
}

// Has reports whether key was ever set.
func (h *Headers) Has(key string) bool {
	_, ok := h.values[Canonicalize(key)]
	return ok
}

// appendLastValue appends a space-joined continuation to the most recently
// added value of the most recently added header (folded header-continuation
// lines).
func (h *Headers) appendLastValue(extra string) bool {
	if len(h.order) == 0 {
		return false
	}
	last := h.order[len(h.order)-1]
	vs := h.values[last]
	if len(vs) == 0 {
		return false
	}
	vs[len(vs)-1] = strings.TrimRight(vs[len(vs)-1], " \t") + " " + extra
	h.values[last] = vs
	return true
}

// Reset clears all entries, for reuse across requests on the same connection.
func (h *Headers) Reset() {
	h.values = make(map[string][]string)
	h.order = nil
}

// WriteWireFormat appends each header as "Name: v1, v2\r\n" (insertion
// order) to dst, comma-joining multi-valued headers.
func (h *Headers) WriteWireFormat(dst *strings.Builder) {
	for _, key := range h.order {
		dst.WriteString(key)
		dst.WriteString(": ")
		dst.WriteString(strings.Join(h.values[key], ", "))
		dst.WriteString("\r\n")
	}
}
