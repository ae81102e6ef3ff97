// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
)

type bufferingMode int

const (
	bufferingNone bufferingMode = iota
	bufferingReadyItems
	bufferingBytes
)

type options struct {
	buffering        bufferingMode
	bufferingSize    int
	contentType      string
	headers          http.Header
	compression      Compression
	compressionLevel int
	hook             StreamHook
	logger           *slog.Logger
}

// Option configures a Body.
type Option func(*options)

// WithBufferingReadyItems coalesces up to n framed chunks into one write.
// It replaces any earlier buffering option.
//
// Chunks are pulled synchronously, so a write waits until n chunks were
// produced or the source ended. With a throttled source the first bytes
// reach the client only after n items; keep n small for such sources.
func WithBufferingReadyItems(n int) Option {
	return func(o *options) {
		o.buffering = bufferingReadyItems
		o.bufferingSize = n
	}
}

// WithBufferingBytes re-slices the output into chunks of exactly size bytes,
// with a shorter final chunk. It replaces any earlier buffering option.
func WithBufferingBytes(size int) Option {
	return func(o *options) {
		o.buffering = bufferingBytes
		o.bufferingSize = size
	}
}

// WithContentType overrides the format's default Content-Type.
func WithContentType(contentType string) Option {
	return func(o *options) {
		o.contentType = contentType
	}
}

// WithHeader adds a response header. Repeated keys accumulate values.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		o.headers.Add(key, value)
	}
}

// WithHeaders merges h into the response headers.
func WithHeaders(h http.Header) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		for k, vs := range h {
			for _, v := range vs {
				o.headers.Add(k, v)
			}
		}
	}
}

// WithCompression compresses the body and sets Content-Encoding. A zero
// level selects the codec's default.
func WithCompression(c Compression, level int) Option {
	return func(o *options) {
		o.compression = c
		o.compressionLevel = level
	}
}

// WithHook installs an observability hook.
func WithHook(h StreamHook) Option {
	return func(o *options) {
		o.hook = h
	}
}

// WithLogger sets the logger used for mid-stream failures and hook panics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o *options) validate() error {
	switch o.buffering {
	case bufferingReadyItems:
		if o.bufferingSize <= 0 {
			return errors.Newf("buffering ready items must be positive, got %d", o.bufferingSize)
		}
	case bufferingBytes:
		if o.bufferingSize <= 0 {
			return errors.Newf("buffering bytes must be positive, got %d", o.bufferingSize)
		}
	}
	if o.compression < CompressionNone || o.compression > CompressionGzip {
		return errors.Newf("unsupported compression %d", int(o.compression))
	}
	return nil
}

// Config is the serialisable form of the body options, for loading from
// configuration files.
type Config struct {
	BufferingReadyItems int               `yaml:"buffering_ready_items" json:"buffering_ready_items,omitempty"`
	BufferingBytes      int               `yaml:"buffering_bytes" json:"buffering_bytes,omitempty"`
	ContentType         string            `yaml:"content_type" json:"content_type,omitempty"`
	Headers             map[string]string `yaml:"headers" json:"headers,omitempty"`
	Compression         Compression       `yaml:"compression" json:"compression,omitempty"`
	CompressionLevel    int               `yaml:"compression_level" json:"compression_level,omitempty"`
}

// Validate rejects negative sizes and more than one buffering mode.
func (c Config) Validate() error {
	if c.BufferingReadyItems != 0 && c.BufferingBytes != 0 {
		return errors.New("buffering_ready_items and buffering_bytes are mutually exclusive")
	}
	if c.BufferingReadyItems < 0 {
		return errors.Newf("buffering_ready_items must not be negative, got %d", c.BufferingReadyItems)
	}
	if c.BufferingBytes < 0 {
		return errors.Newf("buffering_bytes must not be negative, got %d", c.BufferingBytes)
	}
	return nil
}

// Options converts the configuration into Body options. Zero fields are
// left at their defaults.
func (c Config) Options() []Option {
	var opts []Option
	switch {
	case c.BufferingReadyItems > 0:
		opts = append(opts, WithBufferingReadyItems(c.BufferingReadyItems))
	case c.BufferingBytes > 0:
		opts = append(opts, WithBufferingBytes(c.BufferingBytes))
	}
	if c.ContentType != "" {
		opts = append(opts, WithContentType(c.ContentType))
	}
	for k, v := range c.Headers {
		opts = append(opts, WithHeader(k, v))
	}
	if c.Compression != CompressionNone {
		opts = append(opts, WithCompression(c.Compression, c.CompressionLevel))
	}
	return opts
}
