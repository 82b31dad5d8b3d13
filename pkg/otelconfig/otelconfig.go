// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelconfig initializes the OpenTelemetry tracing stack of a host.
package otelconfig

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Supported exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Config is the tracing section of a host config.
type Config struct {
	Exporter    string  `config:"exporter"`
	ServiceName string  `config:"serviceName"`
	SampleRatio float64 `config:"sampleRatio"`
}

// UnknownExporterError is returned for an exporter name with no [Initializer].
type UnknownExporterError struct {
	Name string
}

// Error implements the [builtin.error] interface.
func (e UnknownExporterError) Error() string {
	return fmt.Sprintf("unknown trace exporter: %s", e.Name)
}

// Initializer creates a tracer provider.
type Initializer interface {
	Init(context.Context) (trace.TracerProvider, error)
}

// InitializerFunc is a func implementation of [Initializer].
type InitializerFunc func(context.Context) (trace.TracerProvider, error)

// Init implements the [Initializer] interface.
func (f InitializerFunc) Init(ctx context.Context) (trace.TracerProvider, error) {
	return f(ctx)
}

// Noop creates a tracer provider which never records.
var Noop = InitializerFunc(func(context.Context) (trace.TracerProvider, error) {
	return noop.NewTracerProvider(), nil
})

// LocalOption configures [Local].
type LocalOption func(*localConfig)

type localConfig struct {
	serviceName string
	out         io.Writer
	ratio       float64
}

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) LocalOption {
	return func(lc *localConfig) {
		lc.serviceName = name
	}
}

// Writer sets where spans are written. Default is os.Stdout.
func Writer(w io.Writer) LocalOption {
	return func(lc *localConfig) {
		lc.out = w
	}
}

// SampleRatio sets the fraction of root traces recorded. Parent decisions
// are always honored.
func SampleRatio(f float64) LocalOption {
	return func(lc *localConfig) {
		lc.ratio = f
	}
}

// Local returns an [Initializer] which writes spans as JSON.
func Local(opts ...LocalOption) Initializer {
	lc := &localConfig{
		out:   os.Stdout,
		ratio: 1,
	}
	for _, opt := range opts {
		opt(lc)
	}

	return InitializerFunc(func(ctx context.Context) (trace.TracerProvider, error) {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(lc.out))
		if err != nil {
			return nil, err
		}

		res, err := resource.New(
			ctx,
			resource.WithTelemetrySDK(),
			resource.WithAttributes(semconv.ServiceName(lc.serviceName)),
		)
		if err != nil {
			return nil, err
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(lc.ratio))),
		)
		return tp, nil
	})
}

// FromConfig selects the [Initializer] named by cfg.Exporter.
// An empty name selects [Noop].
func FromConfig(cfg Config) (Initializer, error) {
	switch cfg.Exporter {
	case "", ExporterNone:
		return Noop, nil
	case ExporterStdout:
		opts := []LocalOption{ServiceName(cfg.ServiceName)}
		if cfg.SampleRatio > 0 {
			opts = append(opts, SampleRatio(cfg.SampleRatio))
		}
		return Local(opts...), nil
	default:
		return nil, UnknownExporterError{Name: cfg.Exporter}
	}
}

// Setup initializes a tracer provider and installs it, along with the
// W3C trace context and baggage propagator, as the otel globals.
// The returned func flushes and stops the provider.
func Setup(ctx context.Context, i Initializer) (func(context.Context) error, error) {
	tp, err := i.Init(ctx)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) error {
		sp, ok := tp.(interface{ Shutdown(context.Context) error })
		if !ok {
			return nil
		}
		return sp.Shutdown(ctx)
	}
	return shutdown, nil
}
