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

package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetBuffer_AppendReadRoundTrip(t *testing.T) {
	b := New(16)
	require.True(t, b.IsCleared())

	n := copy(b.WritableSlice(), []byte("hello"))
	b.Advance(n)
	assert.Equal(t, 5, b.Unread())

	b.FlipRead()
	assert.Equal(t, "hello", string(b.ReadableSlice()))

	b.Consume(3)
	assert.Equal(t, "lo", string(b.ReadableSlice()))

	// Flipping back to append must not overwrite the unread "lo".
	b.FlipAppend()
	n2 := copy(b.WritableSlice(), []byte("XYZ"))
	b.Advance(n2)

	b.FlipRead()
	assert.Equal(t, "loXYZ", string(b.ReadableSlice()))
}

func TestNetBuffer_FlipIsNoOpWhenAlreadyInMode(t *testing.T) {
	b := New(8)
	b.FlipAppend() // already Append: no-op
	assert.Equal(t, Append, b.Mode())
	assert.True(t, b.IsCleared())

	b.FlipRead()
	assert.Equal(t, Read, b.Mode())
	pos, limit := b.pos, b.limit
	b.FlipRead() // already Read: no-op
	assert.Equal(t, pos, b.pos)
	assert.Equal(t, limit, b.limit)
}

func TestNetBuffer_Compact(t *testing.T) {
	b := New(8)
	b.Advance(copy(b.WritableSlice(), []byte("abcdefgh")))
	assert.True(t, b.IsFull())

	b.FlipRead()
	b.Consume(3) // "abc" read, "defgh" unread

	b.Compact()
	assert.True(t, b.IsCompacted())
	assert.Equal(t, Append, b.Mode())
	assert.Equal(t, 5, b.Unread())

	b.FlipRead()
	assert.Equal(t, "defgh", string(b.ReadableSlice()))
}

func TestNetBuffer_Clear(t *testing.T) {
	b := New(8)
	b.Advance(copy(b.WritableSlice(), []byte("abc")))
	b.FlipRead()
	b.Consume(1)
	b.Clear()
	assert.True(t, b.IsCleared())
	assert.Equal(t, 0, b.Unread())
}

func TestNetBuffer_Resize_PreservesUnread(t *testing.T) {
	b := New(4)
	b.Advance(copy(b.WritableSlice(), []byte("ab")))
	b.FlipRead()

	assert.True(t, b.NeedsResize(8))
	b.Resize(8)
	assert.Equal(t, 8, b.Capacity())
	assert.Equal(t, "ab", string(b.ReadableSlice()))
}

func TestNetBuffer_ResizeUnsafe_Discards(t *testing.T) {
	b := New(4)
	b.Advance(copy(b.WritableSlice(), []byte("ab")))
	b.ResizeUnsafe(8)
	assert.True(t, b.IsCleared())
	assert.Equal(t, 8, b.Capacity())
}

func TestNetBuffer_IsEmpty(t *testing.T) {
	b := New(4)
	assert.True(t, b.IsEmpty())
	b.Advance(copy(b.WritableSlice(), []byte("x")))
	assert.False(t, b.IsEmpty())
}

func TestPool_AllocateRelease(t *testing.T) {
	p := NewPool(2, 16)
	e1 := p.Allocate()
	e2 := p.Allocate()
	assert.NotEqual(t, e1.Tag, e2.Tag)

	p.Release(e1)
	assert.Equal(t, 1, p.Len())

	e3 := p.Allocate()
	assert.Equal(t, e1.Tag, e3.Tag, "released entry should be reused")
	assert.True(t, e3.Buf.IsCleared(), "entries are reset on allocate")
}

func TestPool_ReleaseBeyondCapacityDiscards(t *testing.T) {
	p := NewPool(1, 16)
	e1 := p.Allocate()
	e2 := p.Allocate()

	p.Release(e1)
	p.Release(e2) // pool full, discarded
	assert.Equal(t, 1, p.Len())
}

func TestBuilder_OrderAndContentLength(t *testing.T) {
	b := NewBuilder()
	b.WriteString("BODY")

	front := b.InsertFront()
	front.Write([]byte("STATUS "))
	front.Release()

	back := b.InsertBack()
	back.Write([]byte(" TAIL"))
	back.Release()

	out := b.Build()
	require.Len(t, out, 3)
	assert.Equal(t, "STATUS ", string(out[0]))
	assert.Equal(t, "BODY", string(out[1]))
	assert.Equal(t, " TAIL", string(out[2]))
	assert.Equal(t, 16, b.TotalLen())
}
