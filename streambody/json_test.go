// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody_test

import (
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Query-farm/streambody/streambody"
)

type fooItem struct {
	Foo string `json:"foo"`
}

type envelope struct {
	OtherField string    `json:"other_field"`
	MyArray    []fooItem `json:"my_array"`
}

func repeat[T any](v T, n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestJSONArray(t *testing.T) {
	items := repeat(fooItem{Foo: "bar"}, 7)
	b := streambody.JSONArray(slices.Values(items))

	require.Equal(t, "application/json", b.Header().Get("Content-Type"))

	expected, err := json.Marshal(items)
	require.NoError(t, err)
	require.Equal(t, string(expected), drainString(t, b))
}

func TestJSONArrayFraming(t *testing.T) {
	tests := []struct {
		name     string
		items    []int
		expected []string
	}{
		{"empty", nil, []string{"[", "]"}},
		{"one", []int{1}, []string{"[", "1", "]"}},
		{"three", []int{1, 2, 3}, []string{"[", "1", ",2", ",3", "]"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			chunks, err := drain(t, streambody.JSONArray(slices.Values(test.items)))
			require.NoError(t, err)
			require.Equal(t, test.expected, chunkStrings(chunks))
		})
	}
}

func TestJSONArrayWithEnvelope(t *testing.T) {
	items := []fooItem{{Foo: "a"}, {Foo: "b"}}

	t.Run("replaces existing field", func(t *testing.T) {
		b := streambody.JSONArrayWithEnvelope(slices.Values(items), envelope{OtherField: "test", MyArray: []fooItem{}}, "my_array")
		out := drainString(t, b)
		require.Equal(t, `{"other_field":"test","my_array":[{"foo":"a"},{"foo":"b"}]}`, out)
		require.True(t, json.Valid([]byte(out)))
	})

	t.Run("null placeholder", func(t *testing.T) {
		b := streambody.JSONArrayWithEnvelope(slices.Values(items), envelope{OtherField: "test"}, "my_array")
		require.Equal(t, `{"other_field":"test","my_array":[{"foo":"a"},{"foo":"b"}]}`, drainString(t, b))
	})

	t.Run("new field", func(t *testing.T) {
		b := streambody.JSONArrayWithEnvelope(slices.Values(items), map[string]int{"total": 2}, "items")
		require.Equal(t, `{"total":2,"items":[{"foo":"a"},{"foo":"b"}]}`, drainString(t, b))
	})

	t.Run("empty object", func(t *testing.T) {
		b := streambody.JSONArrayWithEnvelope(slices.Values([]fooItem(nil)), struct{}{}, "items")
		require.Equal(t, `{"items":[]}`, drainString(t, b))
	})

	t.Run("array field first", func(t *testing.T) {
		env := struct {
			MyArray    []fooItem `json:"my_array"`
			OtherField string    `json:"other_field"`
		}{MyArray: []fooItem{}, OtherField: "x"}
		b := streambody.JSONArrayWithEnvelope(slices.Values(items), env, "my_array")
		require.Equal(t, `{"other_field":"x","my_array":[{"foo":"a"},{"foo":"b"}]}`, drainString(t, b))
	})

	t.Run("bracketed field name", func(t *testing.T) {
		b := streambody.JSONArrayWithEnvelope(slices.Values([]int{1}), map[string]int{"[0]": 1, "z": 2}, "[0]")
		out := drainString(t, b)
		require.Equal(t, `{"z":2,"[0]":[1]}`, out)
		require.True(t, json.Valid([]byte(out)))
	})

	t.Run("escaped field name", func(t *testing.T) {
		b := streambody.JSONArrayWithEnvelope(slices.Values([]int{1}), map[string]int{`a"b`: 1, "c": 2}, `a"b`)
		out := drainString(t, b)
		require.Equal(t, `{"c":2,"a\"b":[1]}`, out)
		require.True(t, json.Valid([]byte(out)))
	})

	t.Run("nested field of the same name is kept", func(t *testing.T) {
		env := map[string]any{"meta": map[string]int{"items": 3}, "items": nil}
		b := streambody.JSONArrayWithEnvelope(slices.Values([]int{1, 2}), env, "items")
		require.Equal(t, `{"meta":{"items":3},"items":[1,2]}`, drainString(t, b))
	})

	t.Run("invalid envelopes", func(t *testing.T) {
		for _, env := range []any{1, "text", []int{1}, nil} {
			b := streambody.JSONArrayWithEnvelope(slices.Values(items), env, "items")
			chunks, err := drain(t, b)
			require.Empty(t, chunks)
			require.Error(t, err)
			require.True(t, streambody.IsKind(err, streambody.KindConfig), "%v", err)
		}
	})
}

func TestJSONLines(t *testing.T) {
	items := []fooItem{{Foo: "a"}, {Foo: "b"}, {Foo: "c"}}
	b := streambody.JSONLines(slices.Values(items))
	require.Equal(t, "application/jsonstream", b.Header().Get("Content-Type"))
	require.Equal(t, "{\"foo\":\"a\"}\n{\"foo\":\"b\"}\n{\"foo\":\"c\"}\n", drainString(t, b))

	chunks, err := drain(t, streambody.JSONLines(slices.Values([]fooItem(nil))))
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestJSONArrayWithErrors(t *testing.T) {
	boom := errors.New("boom")
	pulled := 0
	b := streambody.JSONArrayWithErrors(failAt(10000, 9, boom, &pulled))

	chunks, err := drain(t, b)
	require.ErrorIs(t, err, boom)
	require.True(t, streambody.IsKind(err, streambody.KindSource))

	var se *streambody.StreamError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 9, se.Position)
	require.Equal(t, streambody.FormatJSONArray, se.Format)

	// Opening bracket plus the nine items before the failure.
	require.Len(t, chunks, 10)
	require.Equal(t, "[", string(chunks[0]))
	require.Equal(t, "[0,1,2,3,4,5,6,7,8", strings.Join(chunkStrings(chunks), ""))
	require.Equal(t, 10, pulled)

	// Nothing is observable after the error.
	_, err = b.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestJSONEncodeError(t *testing.T) {
	b := streambody.JSONLines(slices.Values([]any{1, func() {}, 3}))
	chunks, err := drain(t, b)
	require.Equal(t, []string{"1\n"}, chunkStrings(chunks))
	require.True(t, streambody.IsKind(err, streambody.KindEncode))
}
