// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import "iter"

// TextFormat writes items verbatim, without escaping or separators.
type TextFormat[T ~string | ~[]byte] struct{}

// NewText returns the plain text format.
func NewText[T ~string | ~[]byte]() TextFormat[T] {
	return TextFormat[T]{}
}

func (f TextFormat[T]) Kind() FormatKind    { return FormatText }
func (f TextFormat[T]) ContentType() string { return ContentTypeText }

func (f TextFormat[T]) Frames(src iter.Seq2[T, error]) iter.Seq2[[]byte, error] {
	return frame(src, framing[T]{
		kind: FormatText,
		// Byte slice items are copied: chunks can be held by rebuffering
		// after the source reused its buffer.
		item: func(_ int, v T) ([]byte, error) {
			return append([]byte(nil), v...), nil
		},
	})
}

// Text streams strings or byte slices as a plain text body.
func Text[T ~string | ~[]byte](src iter.Seq[T], opts ...Option) *Body {
	return New(NewText[T](), Values(src), opts...)
}

// TextWithErrors streams text, stopping at the first source error.
func TextWithErrors[T ~string | ~[]byte](src iter.Seq2[T, error], opts ...Option) *Body {
	return New(NewText[T](), src, opts...)
}
