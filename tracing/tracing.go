// Package tracing offers support for distributed tracing utilizing OpenTelemetry (OTEL).
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package tracing

import (
	"context"
	"os"

	"github.com/NVIDIA/raidio/cmn"
	"github.com/NVIDIA/raidio/cmn/cos"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	serviceName = "raidio"
	scope       = "github.com/NVIDIA/raidio"
)

// overridden by tests
var newExporter = func(conf *cmn.TraceConf) (sdktrace.SpanExporter, error) {
	options := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(conf.Endpoint),
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{Enabled: true}),
	}
	if conf.Insecure {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(context.Background(), options...)
}

func newResource(version string) *resource.Resource {
	host, _ := os.Hostname()
	r, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("version", version),
			attribute.String("host", host),
		),
	)
	return r
}

// NewProvider returns nil when tracing is disabled; the engine then falls
// back to a no-op tracer. Extra options (e.g. a synchronous in-memory
// exporter) are appended after the defaults.
func NewProvider(conf *cmn.TraceConf, version string, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	if conf == nil || (!conf.Enabled && len(opts) == 0) {
		return nil, nil
	}
	all := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(conf.SampleRatio))),
		sdktrace.WithResource(newResource(version)),
	}
	if conf.Enabled {
		cos.AssertMsg(conf.Endpoint != "", "exporter endpoint can't be empty")
		exp, err := newExporter(conf)
		if err != nil {
			return nil, errors.Wrapf(err, "trace exporter %q", conf.Endpoint)
		}
		all = append(all, sdktrace.WithBatcher(exp))
	}
	all = append(all, opts...)
	tp := sdktrace.NewTracerProvider(all...)

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
	return tp, nil
}

// Tracer of a provider; nil yields a no-op tracer
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return tp.Tracer(scope)
}

func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// SetError marks the span failed
func SetError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
