// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpinfo provides a http middleware which classifies inbound
// requests and publishes the resulting [requestinfo.RequestInfo] to the
// ambient [flow] store.
package httpinfo

import (
	"log/slog"
	"net/http"

	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/pkg/noop"
	"github.com/z5labs/webhost/pkg/slogfield"
	"github.com/z5labs/webhost/requestinfo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes set on the active span of every classified request.
const (
	AttributeTimeout        = attribute.Key("request.timeout")
	AttributePriority       = attribute.Key("request.priority")
	AttributeClientIdentity = attribute.Key("request.client_identity")
)

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

// Middleware classifies every request with [requestinfo.Classify] and makes
// the result available downstream through [requestinfo.FromContext].
//
// When used below the context propagation middleware, the classification is
// published in a nested scope of the same request store. Used on its own, it
// begins a request store of its own.
//
// Middleware panics if settings fail [requestinfo.Settings.Validate].
func Middleware(settings requestinfo.Settings, opts ...Option) func(http.Handler) http.Handler {
	if err := settings.Validate(); err != nil {
		panic(err)
	}

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

			info := requestinfo.Classify(r, settings)
			flow.SetGlobalContext(ctx, info)

			span := trace.SpanFromContext(ctx)
			span.SetAttributes(
				AttributeTimeout.String(info.Timeout.String()),
				AttributePriority.String(info.Priority.String()),
				AttributeClientIdentity.String(info.ClientApplicationIdentity),
			)

			log.DebugContext(
				ctx,
				"classified request",
				slogfield.Duration("timeout", info.Timeout),
				slogfield.Stringer("priority", info.Priority),
				slogfield.String("client_identity", info.ClientApplicationIdentity),
				slogfield.Stringer("remote_address", info.RemoteAddress),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
