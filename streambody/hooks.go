// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streambody

import (
	"context"
	"time"
)

// StreamHook provides observability callpoints around one streamed body.
// Implementations must be safe for concurrent use; one hook is usually
// shared by every request of a server.
type StreamHook interface {
	OnStreamStart(ctx context.Context, info StreamInfo) (context.Context, HookToken)
	OnStreamEnd(ctx context.Context, token HookToken, info StreamInfo, stats *StreamStatistics, err error)
}

// HookToken is an opaque value returned by OnStreamStart and passed back to
// OnStreamEnd. Only meaningful to the StreamHook that created it.
type HookToken interface{}

// StreamInfo describes the body being streamed.
type StreamInfo struct {
	Format            FormatKind
	ContentType       string
	Compression       Compression
	TransportMetadata map[string]string // Request headers or other transport-level metadata
}

// StreamStatistics holds per-body counters.
type StreamStatistics struct {
	Items    int64 // items pulled from the source
	Chunks   int64 // chunks handed to the transport
	Bytes    int64 // bytes handed to the transport
	Duration time.Duration
}

// RecordItem records one item pulled from the source.
func (s *StreamStatistics) RecordItem() {
	s.Items++
}

// RecordChunk records one chunk of n bytes handed to the transport.
func (s *StreamStatistics) RecordChunk(n int) {
	s.Chunks++
	s.Bytes += int64(n)
}
