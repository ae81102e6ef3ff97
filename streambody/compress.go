// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"bytes"
	"io"
	"iter"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects a Content-Encoding applied to the framed byte stream.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionGzip
)

// String returns the Content-Encoding token.
func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionGzip:
		return "gzip"
	default:
		return ""
	}
}

// ParseCompression maps a Content-Encoding token to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "identity":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "gzip":
		return CompressionGzip, nil
	}
	return CompressionNone, errors.Newf("unknown compression %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler for configuration files.
func (c *Compression) UnmarshalText(text []byte) error {
	v, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Compression) MarshalText() ([]byte, error) {
	if c == CompressionNone {
		return []byte("none"), nil
	}
	return []byte(c.String()), nil
}

type flushWriteCloser interface {
	io.WriteCloser
	Flush() error
}

func newCompressor(w io.Writer, c Compression, level int) (flushWriteCloser, error) {
	switch c {
	case CompressionZstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level != 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(w, opts...)
	case CompressionGzip:
		if level == 0 {
			level = gzip.DefaultCompression
		}
		return gzip.NewWriterLevel(w, level)
	}
	return nil, errors.Newf("unsupported compression %d", int(c))
}

// compressChunks compresses the chunk stream, flushing the compressor after
// every chunk so each input chunk yields the compressed bytes for it.
func compressChunks(chunks iter.Seq2[[]byte, error], format FormatKind, c Compression, level int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var buf bytes.Buffer
		cw, err := newCompressor(&buf, c, level)
		if err != nil {
			yield(nil, configError(format, err))
			return
		}
		closed := false
		defer func() {
			if !closed {
				_ = cw.Close()
			}
		}()
		drain := func() bool {
			if buf.Len() == 0 {
				return true
			}
			out := bytes.Clone(buf.Bytes())
			buf.Reset()
			return yield(out, nil)
		}

		for chunk, err := range chunks {
			if err != nil {
				yield(nil, err)
				return
			}
			if _, err := cw.Write(chunk); err != nil {
				yield(nil, encodeError(format, -1, errors.Wrap(err, "compressing chunk")))
				return
			}
			if err := cw.Flush(); err != nil {
				yield(nil, encodeError(format, -1, errors.Wrap(err, "flushing compressor")))
				return
			}
			if !drain() {
				return
			}
		}
		closed = true
		if err := cw.Close(); err != nil {
			yield(nil, encodeError(format, -1, errors.Wrap(err, "closing compressor")))
			return
		}
		drain()
	}
}
