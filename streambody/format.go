// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"fmt"
	"iter"
)

// FormatKind identifies one of the supported wire formats.
type FormatKind int

const (
	// FormatJSONArray is a single JSON array, optionally inside an envelope object.
	FormatJSONArray FormatKind = iota
	// FormatJSONLines is newline-delimited JSON.
	FormatJSONLines
	// FormatCSV is delimiter-separated rows.
	FormatCSV
	// FormatProtobuf is varint length-prefixed protobuf messages.
	FormatProtobuf
	// FormatArrowIPC is the Arrow IPC streaming format.
	FormatArrowIPC
	// FormatText is raw text with no framing.
	FormatText
)

func (k FormatKind) String() string {
	switch k {
	case FormatJSONArray:
		return "json_array"
	case FormatJSONLines:
		return "json_lines"
	case FormatCSV:
		return "csv"
	case FormatProtobuf:
		return "protobuf"
	case FormatArrowIPC:
		return "arrow_ipc"
	case FormatText:
		return "text"
	default:
		return fmt.Sprintf("FormatKind(%d)", int(k))
	}
}

// Default content types per format.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeJSONLines   = "application/jsonstream"
	ContentTypeCSV         = "text/csv"
	ContentTypeProtobuf    = "application/x-protobuf-stream"
	ContentTypeArrowStream = "application/vnd.apache.arrow.stream"
	ContentTypeText        = "text/plain; charset=utf-8"
)

// Format turns a sequence of items into a sequence of framed byte chunks.
//
// Frames must stop after yielding the first error and must not pull further
// items from src once it has done so. A Format value may be reused for many
// responses; all per-stream state lives inside the returned sequence.
type Format[T any] interface {
	Kind() FormatKind
	ContentType() string
	Frames(src iter.Seq2[T, error]) iter.Seq2[[]byte, error]
}

// framing describes one format's incremental emission. begin runs before the
// first item (also for empty streams), item once per item with its position,
// end after the last item when no error occurred. A nil chunk is skipped.
// release, if set, runs when the sequence stops for any reason.
type framing[T any] struct {
	kind    FormatKind
	begin   func() ([]byte, error)
	item    func(pos int, v T) ([]byte, error)
	end     func() ([]byte, error)
	release func()
}

// frame folds src through f, threading the item position and stopping on
// the first error from any stage.
func frame[T any](src iter.Seq2[T, error], f framing[T]) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if f.release != nil {
			defer f.release()
		}
		if f.begin != nil {
			chunk, err := f.begin()
			if err != nil {
				yield(nil, configError(f.kind, err))
				return
			}
			if chunk != nil && !yield(chunk, nil) {
				return
			}
		}

		pos := 0
		for v, err := range src {
			if err != nil {
				yield(nil, sourceError(f.kind, pos, err))
				return
			}
			chunk, err := f.item(pos, v)
			if err != nil {
				yield(nil, encodeError(f.kind, pos, err))
				return
			}
			if !yield(chunk, nil) {
				return
			}
			pos++
		}

		if f.end != nil {
			chunk, err := f.end()
			if err != nil {
				yield(nil, encodeError(f.kind, -1, err))
				return
			}
			if chunk != nil {
				yield(chunk, nil)
			}
		}
	}
}
