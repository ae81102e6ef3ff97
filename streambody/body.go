// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"context"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Body is a lazily encoded response body: a fixed header set plus a
// pull-based sequence of chunks. A Body serves one response and is not safe
// for concurrent use.
type Body struct {
	header http.Header
	info   StreamInfo
	opts   *options
	chunks iter.Seq2[[]byte, error]
	stats  StreamStatistics

	ctx        context.Context
	next       func() ([]byte, error, bool)
	stop       func()
	started    bool
	done       bool
	pending    []byte
	hookToken  HookToken
	hookActive bool
	startTime  time.Time
}

// New builds a Body that encodes src with format. Invalid options surface
// as a configuration *StreamError from the first Next call.
func New[T any](format Format[T], src iter.Seq2[T, error], opts ...Option) *Body {
	o := buildOptions(opts)
	b := &Body{opts: o}

	b.header = make(http.Header)
	contentType := format.ContentType()
	if o.contentType != "" {
		contentType = o.contentType
	}
	b.header.Set("Content-Type", contentType)
	if o.compression != CompressionNone {
		b.header.Set("Content-Encoding", o.compression.String())
	}
	for k, vs := range o.headers {
		b.header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	b.info = StreamInfo{
		Format:      format.Kind(),
		ContentType: b.header.Get("Content-Type"),
		Compression: o.compression,
	}

	if err := o.validate(); err != nil {
		b.chunks = failed(configError(format.Kind(), err))
		return b
	}
	chunks := format.Frames(countItems(src, &b.stats))
	if o.compression != CompressionNone {
		chunks = compressChunks(chunks, format.Kind(), o.compression, o.compressionLevel)
	}
	switch o.buffering {
	case bufferingReadyItems:
		chunks = rebufferItems(chunks, o.bufferingSize)
	case bufferingBytes:
		chunks = rebufferBytes(chunks, o.bufferingSize)
	}
	b.chunks = chunks
	return b
}

func failed(err error) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		yield(nil, err)
	}
}

func countItems[T any](src iter.Seq2[T, error], stats *StreamStatistics) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for v, err := range src {
			if err == nil {
				stats.RecordItem()
			}
			if !yield(v, err) {
				return
			}
		}
	}
}

// Header returns a copy of the response headers. They are fixed when the
// Body is built and never change afterwards.
func (b *Body) Header() http.Header {
	return b.header.Clone()
}

// Info describes the body for hooks and logging.
func (b *Body) Info() StreamInfo {
	return b.info
}

// Stats returns a snapshot of the body's counters.
func (b *Body) Stats() StreamStatistics {
	return b.stats
}

// Attach binds the request context and transport metadata passed to the
// hook. It has no effect once streaming started. ServeHTTP calls it with the
// request's context and headers when nothing was attached.
func (b *Body) Attach(ctx context.Context, metadata map[string]string) *Body {
	if b.started {
		return b
	}
	b.ctx = ctx
	b.info.TransportMetadata = metadata
	return b
}

func (b *Body) start() {
	b.started = true
	b.startTime = time.Now()
	if b.ctx == nil {
		b.ctx = context.Background()
	}
	if b.opts.hook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					b.opts.logger.Error("stream hook start panic", "format", b.info.Format.String(), "err", rv)
				}
			}()
			hookCtx, token := b.opts.hook.OnStreamStart(b.ctx, b.info)
			if hookCtx != nil {
				b.ctx = hookCtx
			}
			b.hookToken = token
			b.hookActive = true
		}()
	}
	b.next, b.stop = iter.Pull2(b.chunks)
}

func (b *Body) finish(err error) {
	b.done = true
	b.pending = nil
	if b.stop != nil {
		b.stop()
	}
	b.stats.Duration = time.Since(b.startTime)
	if !b.hookActive {
		return
	}
	b.hookActive = false
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				b.opts.logger.Error("stream hook end panic", "format", b.info.Format.String(), "err", rv)
			}
		}()
		stats := b.stats
		b.opts.hook.OnStreamEnd(b.ctx, b.hookToken, b.info, &stats, err)
	}()
}

// Next returns the next chunk. It returns io.EOF once the stream is
// exhausted; a failed stream returns its *StreamError once and io.EOF on
// every later call.
func (b *Body) Next() ([]byte, error) {
	if b.done {
		return nil, io.EOF
	}
	if !b.started {
		b.start()
	}
	chunk, err, ok := b.next()
	if !ok {
		b.finish(nil)
		return nil, io.EOF
	}
	if err != nil {
		b.finish(err)
		return nil, err
	}
	b.stats.RecordChunk(len(chunk))
	return chunk, nil
}

// Prime pulls the first chunk ahead of the transport, so a failure before
// any byte exists (a configuration error in particular) can still be
// answered with an error status. The chunk is kept for the next Read,
// WriteTo or ServeHTTP. Prime is a no-op once streaming started.
func (b *Body) Prime() error {
	if b.started || b.done {
		return nil
	}
	chunk, err := b.Next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	b.pending = chunk
	return nil
}

// Read implements io.Reader over the chunk sequence.
func (b *Body) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		chunk, err := b.Next()
		if err != nil {
			return 0, err
		}
		b.pending = chunk
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

// WriteTo writes every chunk to w, flushing after each one when w
// implements http.Flusher.
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	defer b.Close()
	flusher, _ := w.(http.Flusher)
	var total int64
	if len(b.pending) > 0 {
		n, err := w.Write(b.pending)
		total += int64(n)
		b.pending = nil
		if err != nil {
			return total, err
		}
	}
	for {
		chunk, err := b.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, errors.Wrap(err, "writing chunk")
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Close stops the upstream sequence. Closing a body that has not been
// drained reports ErrClosed to the hook. Close is idempotent.
func (b *Body) Close() error {
	if b.done {
		return nil
	}
	if !b.started {
		b.done = true
		return nil
	}
	b.finish(ErrClosed)
	return nil
}

// ServeHTTP writes the headers and streams the body, flushing after every
// chunk. The first chunk is pulled before the headers: a failure there is
// answered with 500 Internal Server Error. A failure after the headers were
// sent aborts the connection, so the client observes a truncated body.
func (b *Body) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer b.Close()
	if b.ctx == nil && !b.started {
		b.Attach(r.Context(), HeaderMetadata(r.Header))
	}

	log := b.opts.logger.With("format", b.info.Format.String(), "path", r.URL.Path)
	if err := b.Prime(); err != nil {
		log.Error("streaming body failed before the first byte", "err", err, "config", IsKind(err, KindConfig))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h := w.Header()
	for k, vs := range b.header {
		h[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for {
		chunk := b.pending
		b.pending = nil
		if len(chunk) == 0 {
			var err error
			chunk, err = b.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				log.Error("streaming body failed", "err", err, "items", b.stats.Items, "bytes", b.stats.Bytes)
				panic(http.ErrAbortHandler)
			}
		}
		if _, err := w.Write(chunk); err != nil {
			log.Debug("client write failed", "err", err)
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			log.Debug("flush failed", "err", err)
			return
		}
	}
}

// HeaderMetadata flattens request headers into transport metadata with
// lower-cased keys, keeping the first value of each header.
func HeaderMetadata(h http.Header) map[string]string {
	md := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			md[strings.ToLower(k)] = vs[0]
		}
	}
	return md
}
