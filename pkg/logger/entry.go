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

package logger

// Entry accumulates a message, fields and an optional error list before
// emission, the same shape as nabbar-golib/logger/entry.go's Entry builder.
type Entry interface {
	Field(key string, value interface{}) Entry
	Fields(f Fields) Entry
	Error(err error) Entry
	Log()
}

type entry struct {
	l       *Logger
	level   Level
	message string
	fields  Fields
	errs    []error
}

func (e *entry) Field(key string, value interface{}) Entry {
	if e.fields == nil {
		e.fields = Fields{}
	}
	e.fields[key] = value
	return e
}

func (e *entry) Fields(f Fields) Entry {
	for k, v := range f {
		e.Field(k, v)
	}
	return e
}

func (e *entry) Error(err error) Entry {
	if err != nil {
		e.errs = append(e.errs, err)
	}
	return e
}

func (e *entry) Log() {
	e.l.emit(e.level, e.message, e.fields, e.errs)
}
