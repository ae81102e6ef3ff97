// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Query-farm/streambody/internal/config"
	"github.com/Query-farm/streambody/streambody"
	streamotel "github.com/Query-farm/streambody/streambody/otel"
)

// setupTelemetry installs stdout span and metric exporters and returns the
// hook option plus a shutdown func. It returns no option when telemetry is
// off.
func setupTelemetry(cfg config.TelemetryConfig, w io.Writer) ([]streambody.Option, func(context.Context) error, error) {
	if !cfg.Enabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating stdout trace exporter")
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating stdout metric exporter")
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	ocfg := streamotel.DefaultConfig()
	ocfg.TracerProvider = tp
	ocfg.MeterProvider = mp
	ocfg.CustomAttributes = []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	shutdown := func(ctx context.Context) error {
		return errors.CombineErrors(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return []streambody.Option{streamotel.Option(ocfg)}, shutdown, nil
}
