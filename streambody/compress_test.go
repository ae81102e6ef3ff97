// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody_test

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/streambody/streambody"
)

func lines(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("line %d of the compressed stream\n", i)
	}
	return out
}

func TestCompressionRoundTrip(t *testing.T) {
	input := lines(500)
	expected := bytes.Join(toBytes(input), nil)

	tests := []struct {
		name       string
		kind       streambody.Compression
		level      int
		decompress func(io.Reader) ([]byte, error)
	}{
		{"zstd", streambody.CompressionZstd, 0, func(r io.Reader) ([]byte, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			defer dec.Close()
			return io.ReadAll(dec)
		}},
		{"zstd level 19", streambody.CompressionZstd, 19, func(r io.Reader) ([]byte, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			defer dec.Close()
			return io.ReadAll(dec)
		}},
		{"gzip", streambody.CompressionGzip, 0, func(r io.Reader) ([]byte, error) {
			dec, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			defer dec.Close()
			return io.ReadAll(dec)
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := streambody.Text(slices.Values(input), streambody.WithCompression(test.kind, test.level))
			require.Equal(t, test.kind.String(), b.Header().Get("Content-Encoding"))
			require.Equal(t, "text/plain; charset=utf-8", b.Header().Get("Content-Type"))

			chunks, err := drain(t, b)
			require.NoError(t, err)
			// Flushing per item keeps the body streaming.
			require.GreaterOrEqual(t, len(chunks), len(input))

			out, err := test.decompress(bytes.NewReader(bytes.Join(chunks, nil)))
			require.NoError(t, err)
			require.Equal(t, expected, out)
		})
	}
}

func TestCompressionWithBufferingBytes(t *testing.T) {
	input := lines(100)
	b := streambody.Text(slices.Values(input),
		streambody.WithCompression(streambody.CompressionGzip, 0),
		streambody.WithBufferingBytes(64))

	chunks, err := drain(t, b)
	require.NoError(t, err)
	for _, c := range chunks[:len(chunks)-1] {
		require.Len(t, c, 64)
	}

	dec, err := gzip.NewReader(bytes.NewReader(bytes.Join(chunks, nil)))
	require.NoError(t, err)
	out, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, bytes.Join(toBytes(input), nil), out)
}

func toBytes(in []string) [][]byte {
	out := make([][]byte, len(in))
	for i, s := range in {
		out[i] = []byte(s)
	}
	return out
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in       string
		expected streambody.Compression
		wantErr  bool
	}{
		{"", streambody.CompressionNone, false},
		{"none", streambody.CompressionNone, false},
		{"ZSTD", streambody.CompressionZstd, false},
		{" gzip ", streambody.CompressionGzip, false},
		{"brotli", streambody.CompressionNone, true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			got, err := streambody.ParseCompression(test.in)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.expected, got)
		})
	}
}
