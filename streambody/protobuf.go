// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"iter"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// ProtobufFormat writes each message as a varint length prefix followed by
// the message's wire encoding, with no separators between records.
type ProtobufFormat[T proto.Message] struct {
	marshal proto.MarshalOptions
}

// NewProtobuf returns a length-prefixed protobuf format.
func NewProtobuf[T proto.Message]() ProtobufFormat[T] {
	return ProtobufFormat[T]{}
}

// WithDeterministic makes map fields serialize in a stable order.
func (f ProtobufFormat[T]) WithDeterministic(v bool) ProtobufFormat[T] {
	f.marshal.Deterministic = v
	return f
}

func (f ProtobufFormat[T]) Kind() FormatKind    { return FormatProtobuf }
func (f ProtobufFormat[T]) ContentType() string { return ContentTypeProtobuf }

func (f ProtobufFormat[T]) Frames(src iter.Seq2[T, error]) iter.Seq2[[]byte, error] {
	return frame(src, framing[T]{
		kind: FormatProtobuf,
		item: func(_ int, msg T) ([]byte, error) {
			size := f.marshal.Size(msg)
			chunk := make([]byte, 0, protowire.SizeVarint(uint64(size))+size)
			chunk = protowire.AppendVarint(chunk, uint64(size))
			return f.marshal.MarshalAppend(chunk, msg)
		},
	})
}

// Protobuf streams length-prefixed protobuf messages.
func Protobuf[T proto.Message](src iter.Seq[T], opts ...Option) *Body {
	return New(NewProtobuf[T](), Values(src), opts...)
}

// ProtobufWithErrors streams length-prefixed protobuf messages, stopping at
// the first source error.
func ProtobufWithErrors[T proto.Message](src iter.Seq2[T, error], opts ...Option) *Body {
	return New(NewProtobuf[T](), src, opts...)
}
