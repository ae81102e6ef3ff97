// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package streamotel provides OpenTelemetry instrumentation for streamed
// response bodies. It implements the [streambody.StreamHook] interface to
// add a server span and metrics around every body.
//
// Usage:
//
//	hook := streamotel.NewHook(streamotel.DefaultConfig())
//	body := streambody.JSONLines(rows, streambody.WithHook(hook))
package streamotel

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Query-farm/streambody/streambody"
)

const instrumentationName = "github.com/Query-farm/streambody"

// Config configures OpenTelemetry instrumentation for streamed bodies.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator extracts trace context from transport metadata.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed streams.
	// Default true.
	RecordExceptions bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with tracing, metrics and exception
// recording enabled. Providers and propagator are resolved from the global
// OTel SDK when the hook is built.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// Hook implements streambody.StreamHook with OpenTelemetry tracing and metrics.
type Hook struct {
	cfg               Config
	tracer            trace.Tracer
	streamCounter     metric.Int64Counter
	itemCounter       metric.Int64Counter
	byteCounter       metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

var _ streambody.StreamHook = (*Hook)(nil)

// NewHook builds a hook from cfg. One hook is meant to be shared by every
// body of a server.
func NewHook(cfg Config) *Hook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}

	h := &Hook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		h.streamCounter, _ = meter.Int64Counter("streambody.streams",
			metric.WithUnit("{stream}"),
			metric.WithDescription("Number of streamed bodies"),
		)
		h.itemCounter, _ = meter.Int64Counter("streambody.items",
			metric.WithUnit("{item}"),
			metric.WithDescription("Number of items pulled from stream sources"),
		)
		h.byteCounter, _ = meter.Int64Counter("streambody.bytes",
			metric.WithUnit("By"),
			metric.WithDescription("Number of body bytes handed to the transport"),
		)
		h.durationHistogram, _ = meter.Float64Histogram("streambody.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of streamed bodies"),
		)
	}
	return h
}

// Option returns a streambody option installing a hook built from cfg.
func Option(cfg Config) streambody.Option {
	return streambody.WithHook(NewHook(cfg))
}

// spanToken is the HookToken returned by OnStreamStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnStreamStart extracts the parent trace context and starts a server span.
func (h *Hook) OnStreamStart(ctx context.Context, info streambody.StreamInfo) (context.Context, streambody.HookToken) {
	// traceparent/tracestate from request headers
	if h.cfg.Propagator != nil && info.TransportMetadata != nil {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.TransportMetadata))
	}

	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("streambody.format", info.Format.String()),
		attribute.String("http.response.header.content-type", info.ContentType),
	}
	if info.Compression != streambody.CompressionNone {
		attrs = append(attrs, attribute.String("http.response.header.content-encoding", info.Compression.String()))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)
	if v, ok := info.TransportMetadata["user-agent"]; ok && v != "" {
		attrs = append(attrs, attribute.String("user_agent.original", v))
	}

	ctx, span := h.tracer.Start(ctx, "streambody/"+info.Format.String(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnStreamEnd records metrics and span attributes, then ends the span.
func (h *Hook) OnStreamEnd(ctx context.Context, token streambody.HookToken, info streambody.StreamInfo, stats *streambody.StreamStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}
	duration := time.Since(st.startTime)

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, streambody.ErrClosed):
		status = "closed"
	default:
		status = "error"
	}

	if h.cfg.EnableMetrics {
		attrs := metric.WithAttributes(
			attribute.String("streambody.format", info.Format.String()),
			attribute.String("status", status),
		)
		if h.streamCounter != nil {
			h.streamCounter.Add(ctx, 1, attrs)
		}
		if stats != nil {
			if h.itemCounter != nil {
				h.itemCounter.Add(ctx, stats.Items, attrs)
			}
			if h.byteCounter != nil {
				h.byteCounter.Add(ctx, stats.Bytes, attrs)
			}
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), attrs)
		}
	}

	if st.span == nil {
		return
	}
	defer st.span.End()
	if !st.span.IsRecording() {
		return
	}
	if stats != nil {
		st.span.SetAttributes(
			attribute.Int64("streambody.items", stats.Items),
			attribute.Int64("streambody.chunks", stats.Chunks),
			attribute.Int64("streambody.bytes", stats.Bytes),
		)
	}
	if err != nil {
		st.span.SetStatus(codes.Error, err.Error())
		if h.cfg.RecordExceptions {
			st.span.RecordError(err)
		}
		errType := fmt.Sprintf("%T", err)
		var se *streambody.StreamError
		if errors.As(err, &se) {
			errType = se.Kind.String()
		}
		st.span.SetAttributes(attribute.String("streambody.error_type", errType))
	} else {
		st.span.SetStatus(codes.Ok, "")
	}
}
