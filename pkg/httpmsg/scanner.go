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

// Package httpmsg implements HTTP parser utilities and message types:
// byte-level line/token scanning, a canonicalizing Headers multimap, and
// the Request/Response data model.
package httpmsg

// scanLine finds the next CRLF- or LF-terminated line in b starting at off.
// Returns the line (without terminator), the offset just past the
// terminator, and ok=false if no terminator was found before the end of b.
func scanLine(b []byte, off int) (line []byte, next int, ok bool) {
	for i := off; i < len(b); i++ {
		if b[i] == '\n' {
			end := i
			if end > off && b[end-1] == '\r' {
				end--
			}
			return b[off:end], i + 1, true
		}
	}
	return nil, off, false
}

// skipLeadingCRLF advances past any run of empty CRLF/LF-only lines
// preceding a request, as RFC 2616 §4.1 permits servers to tolerate.
func skipLeadingCRLF(b []byte) int {
	off := 0
	for {
		line, next, ok := scanLine(b, off)
		if !ok || len(line) != 0 {
			return off
		}
		off = next
	}
}

// scanWord splits on the first run of spaces/tabs starting at off, returning
// the word and the offset of the first non-space character after it.
func scanWord(b []byte, off int) (word []byte, next int) {
	start := off
	for start < len(b) && isSP(b[start]) {
		start++
	}
	end := start
	for end < len(b) && !isSP(b[end]) {
		end++
	}
	next = end
	for next < len(b) && isSP(b[next]) {
		next++
	}
	return b[start:end], next
}

func isSP(c byte) bool { return c == ' ' || c == '\t' }

// trimSP trims leading/trailing spaces and tabs.
func trimSP(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isSP(b[i]) {
		i++
	}
	for j > i && isSP(b[j-1]) {
		j--
	}
	return b[i:j]
}
