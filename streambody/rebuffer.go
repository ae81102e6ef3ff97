// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"bytes"
	"iter"

	"github.com/valyala/bytebufferpool"
)

// rebufferItems concatenates up to n consecutive chunks into one.
//
// Chunks are pulled synchronously, so every chunk the framing stage has
// produced counts as ready; the stage emits as soon as n chunks have been
// collected or the upstream ends.
func rebufferItems(chunks iter.Seq2[[]byte, error], n int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		batch := make([][]byte, 0, n)
		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			out := bytes.Join(batch, nil)
			clear(batch)
			batch = batch[:0]
			return yield(out, nil)
		}

		for chunk, err := range chunks {
			if err != nil {
				if flush() {
					yield(nil, err)
				}
				return
			}
			batch = append(batch, chunk)
			if len(batch) >= n && !flush() {
				return
			}
		}
		flush()
	}
}

// rebufferBytes re-slices the byte stream into chunks of exactly size bytes.
// The final chunk carries the non-empty remainder.
func rebufferBytes(chunks iter.Seq2[[]byte, error], size int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		buf := bytebufferpool.Get()
		defer bytebufferpool.Put(buf)

		// emit cuts every complete size-byte chunk out of buf.
		emit := func() bool {
			off := 0
			for len(buf.B)-off >= size {
				if !yield(bytes.Clone(buf.B[off:off+size]), nil) {
					return false
				}
				off += size
			}
			if off > 0 {
				n := copy(buf.B, buf.B[off:])
				buf.B = buf.B[:n]
			}
			return true
		}
		flush := func() bool {
			if buf.Len() == 0 {
				return true
			}
			out := bytes.Clone(buf.B)
			buf.Reset()
			return yield(out, nil)
		}

		for chunk, err := range chunks {
			if err != nil {
				if flush() {
					yield(nil, err)
				}
				return
			}
			_, _ = buf.Write(chunk)
			if !emit() {
				return
			}
		}
		flush()
	}
}
