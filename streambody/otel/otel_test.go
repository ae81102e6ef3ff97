// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package streamotel_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Query-farm/streambody/streambody"
	streamotel "github.com/Query-farm/streambody/streambody/otel"
)

type testProviders struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	cfg    streamotel.Config
}

func newProviders() *testProviders {
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	cfg := streamotel.DefaultConfig()
	cfg.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	cfg.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	cfg.Propagator = propagation.TraceContext{}
	cfg.CustomAttributes = []attribute.KeyValue{attribute.String("service", "test")}
	return &testProviders{spans: spans, reader: reader, cfg: cfg}
}

func (p *testProviders) sum(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, p.reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestHookRecordsSpanAndMetrics(t *testing.T) {
	p := newProviders()
	b := streambody.JSONLines(slices.Values([]int{1, 2, 3}), streamotel.Option(p.cfg))
	b.Attach(context.Background(), map[string]string{
		"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		"user-agent":  "curl/8",
	})

	_, err := io.ReadAll(b)
	require.NoError(t, err)

	ended := p.spans.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	require.Equal(t, "streambody/json_lines", span.Name())
	require.Equal(t, codes.Ok, span.Status().Code)
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
	require.Equal(t, "00f067aa0ba902b7", span.Parent().SpanID().String())

	items, ok := attrValue(span.Attributes(), "streambody.items")
	require.True(t, ok)
	require.EqualValues(t, 3, items.AsInt64())
	ua, ok := attrValue(span.Attributes(), "user_agent.original")
	require.True(t, ok)
	require.Equal(t, "curl/8", ua.AsString())
	svc, ok := attrValue(span.Attributes(), "service")
	require.True(t, ok)
	require.Equal(t, "test", svc.AsString())

	require.EqualValues(t, 1, p.sum(t, "streambody.streams"))
	require.EqualValues(t, 3, p.sum(t, "streambody.items"))
	require.EqualValues(t, len("1\n2\n3\n"), p.sum(t, "streambody.bytes"))
}

func TestHookRecordsError(t *testing.T) {
	p := newProviders()
	boom := errors.New("boom")
	src := func(yield func(string, error) bool) {
		_ = yield("ok", nil) && yield("", boom)
	}
	b := streambody.TextWithErrors(src, streamotel.Option(p.cfg))
	_, err := io.ReadAll(b)
	require.ErrorIs(t, err, boom)

	ended := p.spans.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, codes.Error, ended[0].Status().Code)
	errType, ok := attrValue(ended[0].Attributes(), "streambody.error_type")
	require.True(t, ok)
	require.Equal(t, "source", errType.AsString())
	require.Len(t, ended[0].Events(), 1)
	require.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestHookTracingDisabled(t *testing.T) {
	p := newProviders()
	p.cfg.EnableTracing = false
	b := streambody.Text(slices.Values([]string{"a"}), streamotel.Option(p.cfg))
	_, err := io.ReadAll(b)
	require.NoError(t, err)

	require.Empty(t, p.spans.Ended())
	require.EqualValues(t, 1, p.sum(t, "streambody.streams"))
}

func TestHookOverHTTP(t *testing.T) {
	p := newProviders()
	hook := streamotel.NewHook(p.cfg)
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		streambody.JSONArray(slices.Values([]string{"a", "b"}), streambody.WithHook(hook)).ServeHTTP(w, r)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	<-done

	ended := p.spans.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", ended[0].SpanContext().TraceID().String())
}
