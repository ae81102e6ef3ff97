// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"bytes"
	"iter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/cockroachdb/errors"
)

// arrowEOS is the end-of-stream marker: continuation token plus zero length.
var arrowEOS = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00}

// ArrowIPCFormat writes record batches in the Arrow IPC streaming format.
//
// In the default mode every batch becomes a complete, independently readable
// IPC stream (schema, batch, end-of-stream marker). In continuous mode the
// whole response is one IPC stream: the schema is written once before the
// first batch, dictionaries are tracked across batches, and the
// end-of-stream marker is written once after the last batch.
//
// Batches are borrowed: the format never retains or releases them.
type ArrowIPCFormat struct {
	schema     *arrow.Schema
	opts       []ipc.Option
	continuous bool
}

// NewArrowIPC returns the per-batch format. A nil schema uses each batch's own.
func NewArrowIPC(schema *arrow.Schema, opts ...ipc.Option) ArrowIPCFormat {
	return ArrowIPCFormat{schema: schema, opts: opts}
}

// NewArrowIPCStream returns the continuous format. A nil schema is taken from
// the first batch.
func NewArrowIPCStream(schema *arrow.Schema, opts ...ipc.Option) ArrowIPCFormat {
	return ArrowIPCFormat{schema: schema, opts: opts, continuous: true}
}

func (f ArrowIPCFormat) Kind() FormatKind    { return FormatArrowIPC }
func (f ArrowIPCFormat) ContentType() string { return ContentTypeArrowStream }

// Continuous reports whether the format emits one IPC stream for the whole response.
func (f ArrowIPCFormat) Continuous() bool { return f.continuous }

func (f ArrowIPCFormat) Frames(src iter.Seq2[arrow.Record, error]) iter.Seq2[[]byte, error] {
	if !f.continuous {
		return frame(src, framing[arrow.Record]{
			kind: FormatArrowIPC,
			item: func(_ int, rec arrow.Record) ([]byte, error) {
				return f.writeStandalone(rec)
			},
		})
	}

	st := &arrowStreamState{format: f}
	return frame(src, framing[arrow.Record]{
		kind: FormatArrowIPC,
		begin: func() ([]byte, error) {
			st.reset()
			return nil, nil
		},
		item:    st.write,
		end:     st.finish,
		release: st.reset,
	})
}

func (f ArrowIPCFormat) writerOptions(schema *arrow.Schema) []ipc.Option {
	opts := make([]ipc.Option, 0, len(f.opts)+1)
	opts = append(opts, f.opts...)
	return append(opts, ipc.WithSchema(schema))
}

func (f ArrowIPCFormat) writeStandalone(rec arrow.Record) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("nil record batch")
	}
	schema := f.schema
	if schema == nil {
		schema = rec.Schema()
	}
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, f.writerOptions(schema)...)
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, errors.Wrap(err, "writing record batch")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing IPC stream")
	}
	return buf.Bytes(), nil
}

// arrowStreamState is the per-response writer of a continuous stream. The
// ipc.Writer carries the dictionary memo between batches; buf is drained
// after every write so each chunk holds only the newly written messages.
type arrowStreamState struct {
	format ArrowIPCFormat
	buf    bytes.Buffer
	w      *ipc.Writer
}

func (s *arrowStreamState) reset() {
	s.w = nil
	s.buf = bytes.Buffer{}
}

func (s *arrowStreamState) drain() []byte {
	chunk := bytes.Clone(s.buf.Bytes())
	s.buf.Reset()
	return chunk
}

func (s *arrowStreamState) write(_ int, rec arrow.Record) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("nil record batch")
	}
	if s.w == nil {
		schema := s.format.schema
		if schema == nil {
			schema = rec.Schema()
		}
		s.w = ipc.NewWriter(&s.buf, s.format.writerOptions(schema)...)
	}
	if err := s.w.Write(rec); err != nil {
		return nil, errors.Wrap(err, "writing record batch")
	}
	return s.drain(), nil
}

func (s *arrowStreamState) finish() ([]byte, error) {
	if s.w == nil {
		if s.format.schema == nil {
			return bytes.Clone(arrowEOS), nil
		}
		s.w = ipc.NewWriter(&s.buf, s.format.writerOptions(s.format.schema)...)
	}
	err := s.w.Close()
	s.w = nil
	if err != nil {
		return nil, errors.Wrap(err, "closing IPC stream")
	}
	return s.drain(), nil
}

// ArrowIPC streams record batches, each encoded as a standalone IPC stream.
func ArrowIPC(schema *arrow.Schema, src iter.Seq[arrow.Record], opts ...Option) *Body {
	return New(NewArrowIPC(schema), Values(src), opts...)
}

// ArrowIPCWithErrors streams standalone IPC batches, stopping at the first
// source error.
func ArrowIPCWithErrors(schema *arrow.Schema, src iter.Seq2[arrow.Record, error], opts ...Option) *Body {
	return New(NewArrowIPC(schema), src, opts...)
}

// ArrowIPCStream streams record batches as one continuous IPC stream.
func ArrowIPCStream(schema *arrow.Schema, src iter.Seq[arrow.Record], opts ...Option) *Body {
	return New(NewArrowIPCStream(schema), Values(src), opts...)
}

// ArrowIPCStreamWithErrors streams one continuous IPC stream, stopping at the
// first source error. The end-of-stream marker is not written after an error.
func ArrowIPCStreamWithErrors(schema *arrow.Schema, src iter.Seq2[arrow.Record, error], opts ...Option) *Body {
	return New(NewArrowIPCStream(schema), src, opts...)
}
