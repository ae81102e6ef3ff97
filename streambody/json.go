// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"bytes"
	"iter"

	"github.com/buger/jsonparser"
	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
)

var (
	jsonArrayBegin       = []byte("[")
	jsonArrayEnd         = []byte("]")
	jsonArrayEnvelopeEnd = []byte("]}")
	jsonSep              = []byte(",")
	jsonNewLine          = []byte("\n")
)

// JSONArrayFormat writes items as the elements of one JSON array, optionally
// spliced into a field of an envelope object.
type JSONArrayFormat[T any] struct {
	envelope    any
	arrayField  string
	hasEnvelope bool
}

// NewJSONArray returns a format producing `[item,item,...]`.
func NewJSONArray[T any]() JSONArrayFormat[T] {
	return JSONArrayFormat[T]{}
}

// NewJSONArrayWithEnvelope returns a format that serializes envelope and
// streams the items into its arrayField:
//
//	{"other":"x","items":[item,item,...]}
//
// An arrayField already present in the serialized envelope is replaced.
func NewJSONArrayWithEnvelope[T any](envelope any, arrayField string) JSONArrayFormat[T] {
	return JSONArrayFormat[T]{envelope: envelope, arrayField: arrayField, hasEnvelope: true}
}

func (f JSONArrayFormat[T]) Kind() FormatKind    { return FormatJSONArray }
func (f JSONArrayFormat[T]) ContentType() string { return ContentTypeJSON }

func (f JSONArrayFormat[T]) Frames(src iter.Seq2[T, error]) iter.Seq2[[]byte, error] {
	end := jsonArrayEnd
	if f.hasEnvelope {
		end = jsonArrayEnvelopeEnd
	}
	return frame(src, framing[T]{
		kind: FormatJSONArray,
		begin: func() ([]byte, error) {
			if !f.hasEnvelope {
				return jsonArrayBegin, nil
			}
			return envelopePrefix(f.envelope, f.arrayField)
		},
		item: func(pos int, v T) ([]byte, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			if pos == 0 {
				return data, nil
			}
			chunk := make([]byte, 0, len(data)+1)
			chunk = append(chunk, jsonSep...)
			return append(chunk, data...), nil
		},
		end: func() ([]byte, error) {
			return end, nil
		},
	})
}

// envelopePrefix serializes envelope and cuts it open before its closing
// brace, appending the array field key and the opening bracket.
func envelopePrefix(envelope any, arrayField string) ([]byte, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "serializing envelope")
	}
	if len(data) < 2 {
		return nil, errors.Newf("too short envelope: %q", data)
	}
	if data[0] != '{' || data[len(data)-1] != '}' {
		return nil, errors.Newf("envelope must serialize to a JSON object, got %q", data)
	}
	// Keep every top-level member except the array field, dropping a
	// placeholder such as "items":null. Keys are compared unescaped.
	var members [][]byte
	start := 1
	err = jsonparser.ObjectEach(data, func(key, _ []byte, _ jsonparser.ValueType, end int) error {
		member := bytes.TrimLeft(data[start:end], " \t\r\n,")
		start = end
		if string(key) != arrayField {
			members = append(members, member)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing envelope")
	}

	key, err := json.Marshal(arrayField)
	if err != nil {
		return nil, errors.Wrap(err, "serializing envelope array field")
	}

	body := bytes.Join(members, jsonSep)
	prefix := make([]byte, 0, len(data)+len(key)+3)
	prefix = append(prefix, '{')
	prefix = append(prefix, body...)
	if len(body) > 0 {
		prefix = append(prefix, jsonSep...)
	}
	prefix = append(prefix, key...)
	prefix = append(prefix, ':')
	return append(prefix, jsonArrayBegin...), nil
}

// JSONLinesFormat writes every item as one JSON document followed by a newline.
type JSONLinesFormat[T any] struct{}

// NewJSONLines returns a newline-delimited JSON format.
func NewJSONLines[T any]() JSONLinesFormat[T] {
	return JSONLinesFormat[T]{}
}

func (f JSONLinesFormat[T]) Kind() FormatKind    { return FormatJSONLines }
func (f JSONLinesFormat[T]) ContentType() string { return ContentTypeJSONLines }

func (f JSONLinesFormat[T]) Frames(src iter.Seq2[T, error]) iter.Seq2[[]byte, error] {
	return frame(src, framing[T]{
		kind: FormatJSONLines,
		item: func(_ int, v T) ([]byte, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return append(data, jsonNewLine...), nil
		},
	})
}

// JSONArray streams items as a JSON array.
func JSONArray[T any](src iter.Seq[T], opts ...Option) *Body {
	return New(NewJSONArray[T](), Values(src), opts...)
}

// JSONArrayWithErrors streams items as a JSON array, stopping at the first
// source error.
func JSONArrayWithErrors[T any](src iter.Seq2[T, error], opts ...Option) *Body {
	return New(NewJSONArray[T](), src, opts...)
}

// JSONArrayWithEnvelope streams items into arrayField of envelope.
func JSONArrayWithEnvelope[T any](src iter.Seq[T], envelope any, arrayField string, opts ...Option) *Body {
	return New(NewJSONArrayWithEnvelope[T](envelope, arrayField), Values(src), opts...)
}

// JSONArrayWithEnvelopeErrors streams items into arrayField of envelope,
// stopping at the first source error.
func JSONArrayWithEnvelopeErrors[T any](src iter.Seq2[T, error], envelope any, arrayField string, opts ...Option) *Body {
	return New(NewJSONArrayWithEnvelope[T](envelope, arrayField), src, opts...)
}

// JSONLines streams items as newline-delimited JSON.
func JSONLines[T any](src iter.Seq[T], opts ...Option) *Body {
	return New(NewJSONLines[T](), Values(src), opts...)
}

// JSONLinesWithErrors streams items as newline-delimited JSON, stopping at
// the first source error.
func JSONLinesWithErrors[T any](src iter.Seq2[T, error], opts ...Option) *Body {
	return New(NewJSONLines[T](), src, opts...)
}
