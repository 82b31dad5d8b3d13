// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpflow provides a http middleware which restores the distributed
// context of inbound requests into the ambient [flow] store.
package httpflow

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/pkg/noop"
	"github.com/z5labs/webhost/pkg/slogfield"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Properties restored from the distributed context envelope.
const (
	PropertyTraceID      = "trace-id"
	PropertyParentSpanID = "parent-span-id"
)

// Action captures custom values from an inbound request into the ambient store,
// usually with [flow.SetProperty].
type Action interface {
	Apply(context.Context, *http.Request)
}

// ActionFunc is a functional implementation of the [Action] interface.
type ActionFunc func(context.Context, *http.Request)

// Apply implements the [Action] interface.
func (f ActionFunc) Apply(ctx context.Context, r *http.Request) {
	f(ctx, r)
}

// QueryAction copies the query parameter, param, into the given property, if present.
func QueryAction(param, property string) Action {
	return ActionFunc(func(ctx context.Context, r *http.Request) {
		q := r.URL.Query()
		if !q.Has(param) {
			return
		}
		flow.SetProperty(ctx, property, q.Get(param))
	})
}

// HeaderAction copies the header into the given property, if present and non-empty.
func HeaderAction(header, property string) Action {
	return ActionFunc(func(ctx context.Context, r *http.Request) {
		v := r.Header.Get(header)
		if v == "" {
			return
		}
		flow.SetProperty(ctx, property, v)
	})
}

// Settings configures the context propagation [Middleware].
type Settings struct {
	// AdditionalActions run, in order, before the distributed envelope is restored.
	AdditionalActions []Action

	// Propagator extracts the distributed envelope from inbound headers.
	// A nil Propagator disables envelope restoration.
	Propagator propagation.TextMapPropagator
}

// DefaultSettings returns settings which restore W3C trace context and baggage.
func DefaultSettings() Settings {
	return Settings{
		Propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
}

type options struct {
	logHandler slog.Handler
}

// Option configures the [Middleware].
type Option func(*options)

// LogHandler configures the handler used for debug logs.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Middleware opens an ambient scope for every request, runs the configured
// actions, restores the distributed envelope and then calls the next handler.
// The scope is ended once the next handler returns, panics or the request is
// cancelled.
func Middleware(settings Settings, opts ...Option) func(http.Handler) http.Handler {
	o := &options{
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}
	log := slog.New(o.logHandler)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, scope := flow.Begin(r.Context())
			defer scope.End()

			for _, action := range settings.AdditionalActions {
				action.Apply(ctx, r)
			}

			if settings.Propagator != nil {
				ctx = restoreEnvelope(ctx, log, settings.Propagator, r.Header)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func restoreEnvelope(ctx context.Context, log *slog.Logger, p propagation.TextMapPropagator, h http.Header) context.Context {
	remote := p.Extract(context.Background(), propagation.HeaderCarrier(h))

	spanCtx := trace.SpanContextFromContext(remote)
	if spanCtx.IsValid() {
		flow.SetGlobalContext(ctx, spanCtx)
		flow.SetProperty(ctx, PropertyTraceID, spanCtx.TraceID().String())
		flow.SetProperty(ctx, PropertyParentSpanID, spanCtx.SpanID().String())

		// otelhttp may have already started a server span from the same envelope
		if !trace.SpanContextFromContext(ctx).IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, spanCtx)
		}
	}

	bag := baggage.FromContext(remote)
	for _, m := range bag.Members() {
		flow.SetProperty(ctx, m.Key(), m.Value())
	}
	if bag.Len() > 0 && baggage.FromContext(ctx).Len() == 0 {
		ctx = baggage.ContextWithBaggage(ctx, bag)
	}

	log.DebugContext(
		ctx,
		"restored distributed context",
		slogfield.Bool("trace_context", spanCtx.IsValid()),
		slogfield.Int("baggage_members", bag.Len()),
	)
	return ctx
}
