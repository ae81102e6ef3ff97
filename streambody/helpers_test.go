// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody_test

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Query-farm/streambody/streambody"
)

// drain pulls every chunk from b until io.EOF or the terminal error.
func drain(t testing.TB, b *streambody.Body) ([][]byte, error) {
	t.Helper()
	var chunks [][]byte
	for {
		chunk, err := b.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

// drainString is drain for bodies expected to succeed, returning the joined output.
func drainString(t testing.TB, b *streambody.Body) string {
	t.Helper()
	chunks, err := drain(t, b)
	require.NoError(t, err)
	return string(bytes.Join(chunks, nil))
}

func chunkStrings(chunks [][]byte) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = string(c)
	}
	return out
}

// failAt yields 0..n-1 and replaces item at index failIdx with err. pulled
// counts how many elements the consumer requested.
func failAt(n, failIdx int, err error, pulled *int) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := range n {
			*pulled++
			if i == failIdx {
				if !yield(0, err) {
					return
				}
				continue
			}
			if !yield(i, nil) {
				return
			}
		}
	}
}
