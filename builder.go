// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package webhost

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/z5labs/webhost/customize"
	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/hosting"
	"github.com/z5labs/webhost/http/httpflow"
	"github.com/z5labs/webhost/http/httphealth"
	"github.com/z5labs/webhost/http/httpinfo"
	"github.com/z5labs/webhost/http/httpthrottle"
	"github.com/z5labs/webhost/pkg/health"
	"github.com/z5labs/webhost/pkg/noop"
	"github.com/z5labs/webhost/pkg/slogfield"
	"github.com/z5labs/webhost/requestinfo"
	"github.com/z5labs/webhost/throttling"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ServerSettings configure the underlying [http.Server].
type ServerSettings struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultServerSettings leaves request bodies and responses unbounded since
// every request declares its own timeout.
func DefaultServerSettings() ServerSettings {
	return ServerSettings{
		ReadHeaderTimeout: 2 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
}

// Builder accumulates the configuration of a [Runtime].
type Builder struct {
	env  hosting.Environment
	log  *slog.Logger
	root *flow.Store

	flowSettings   customize.Customization[httpflow.Settings]
	infoSettings   customize.Customization[requestinfo.Settings]
	serverSettings customize.Customization[ServerSettings]

	throttlingSetups   []func(*throttling.Builder)
	throttlingDisabled bool
	registerer         prometheus.Registerer

	middlewares []func(http.Handler) http.Handler
	mux         *http.ServeMux

	warmupServices []func(context.Context) error
	warmups        []func(context.Context) error
}

// NewBuilder returns a [Builder] for applications hosted in env.
func NewBuilder(env hosting.Environment) *Builder {
	return &Builder{
		env:  env,
		log:  slog.New(noop.LogHandler{}),
		root: flow.New(),
		mux:  http.NewServeMux(),
	}
}

// Logger sets the logger used by the host and its middlewares.
func (b *Builder) Logger(log *slog.Logger) *Builder {
	if log != nil {
		b.log = log
	}
	return b
}

// SetProperty sets an ambient property every request starts with.
func (b *Builder) SetProperty(key string, value any) *Builder {
	b.root.SetProperty(key, value)
	return b
}

// SetupDistributedContext customizes the settings of the context propagation middleware.
func (b *Builder) SetupDistributedContext(f func(httpflow.Settings) httpflow.Settings) *Builder {
	b.flowSettings.Add(f)
	return b
}

// SetupRequestInfo customizes the settings of the request classification middleware.
func (b *Builder) SetupRequestInfo(f func(requestinfo.Settings) requestinfo.Settings) *Builder {
	b.infoSettings.Add(f)
	return b
}

// SetupServer customizes the settings of the [http.Server].
func (b *Builder) SetupServer(f func(ServerSettings) ServerSettings) *Builder {
	b.serverSettings.Add(f)
	return b
}

// SetupThrottling configures request admission. Throttling is enabled by
// default with [throttling.DefaultEssentials].
func (b *Builder) SetupThrottling(f func(*throttling.Builder)) *Builder {
	if f != nil {
		b.throttlingSetups = append(b.throttlingSetups, f)
	}
	return b
}

// DisableThrottling admits every request.
func (b *Builder) DisableThrottling() *Builder {
	b.throttlingDisabled = true
	return b
}

// MetricsRegisterer registers the host metrics with r.
func (b *Builder) MetricsRegisterer(r prometheus.Registerer) *Builder {
	b.registerer = r
	return b
}

// Use appends a middleware which runs after the built-in ones, in
// registration order.
func (b *Builder) Use(middleware func(http.Handler) http.Handler) *Builder {
	if middleware != nil {
		b.middlewares = append(b.middlewares, middleware)
	}
	return b
}

// Handle registers a http.Handler for the given path pattern.
func (b *Builder) Handle(pattern string, h http.Handler) *Builder {
	b.mux.Handle(pattern, otelhttp.WithRouteTag(pattern, h))
	return b
}

// HandleFunc registers a http.HandlerFunc for the given path pattern.
func (b *Builder) HandleFunc(pattern string, f func(http.ResponseWriter, *http.Request)) *Builder {
	return b.Handle(pattern, http.HandlerFunc(f))
}

// WarmupServices registers f to run before the host starts listening.
func (b *Builder) WarmupServices(f func(context.Context) error) *Builder {
	if f != nil {
		b.warmupServices = append(b.warmupServices, f)
	}
	return b
}

// Warmup registers f to run once the host is listening. The host reports
// itself ready only after every warmup succeeded.
func (b *Builder) Warmup(f func(context.Context) error) *Builder {
	if f != nil {
		b.warmups = append(b.warmups, f)
	}
	return b
}

// MissingServiceURLError means the hosting environment reports no url to listen on.
type MissingServiceURLError struct{}

// Error implements the [builtin.error] interface.
func (MissingServiceURLError) Error() string {
	return "port or url should be configured in the hosting environment"
}

// Build validates the configuration and assembles the request pipeline.
func (b *Builder) Build(ctx context.Context) (*Runtime, error) {
	u, ok := b.env.ServiceURL()
	if !ok {
		return nil, MissingServiceURLError{}
	}

	infoSettings := b.infoSettings.Apply(requestinfo.DefaultSettings())
	err := infoSettings.Validate()
	if err != nil {
		return nil, err
	}
	flowSettings := b.flowSettings.Apply(httpflow.DefaultSettings())
	serverSettings := b.serverSettings.Apply(DefaultServerSettings())

	var h http.Handler = b.mux
	if prefix := strings.TrimSuffix(u.Path, "/"); prefix != "" {
		h = http.StripPrefix(prefix, h)
	}
	for i := len(b.middlewares) - 1; i >= 0; i-- {
		h = b.middlewares[i](h)
	}

	if !b.throttlingDisabled {
		tb := throttling.NewBuilder(b.env)
		for _, setup := range b.throttlingSetups {
			setup(tb)
		}
		cfg, settings := tb.Build()

		th, err := httpthrottle.New(
			cfg,
			settings,
			httpthrottle.LogHandler(b.log.Handler()),
			httpthrottle.Registerer(b.registerer),
		)
		if err != nil {
			return nil, err
		}
		h = th.Middleware(h)
	}

	h = httpinfo.Middleware(infoSettings, httpinfo.LogHandler(b.log.Handler()))(h)
	h = httpflow.Middleware(flowSettings, httpflow.LogHandler(b.log.Handler()))(h)

	rt := &Runtime{
		addr:            hosting.ListenAddr(u),
		log:             b.log,
		root:            b.root,
		server:          serverSettings,
		shutdownTimeout: hosting.CutShutdownTimeout(b.env.ShutdownTimeout()),
		warmupServices:  b.warmupServices,
		warmups:         b.warmups,
		started:         health.NewBinary(false),
		liveness:        health.NewBinary(false),
		readiness:       health.NewBinary(false),
	}

	root := http.NewServeMux()
	root.Handle("/health/startup", httphealth.NewHandler(rt.started))
	root.Handle("/health/liveness", httphealth.NewHandler(rt.liveness))
	root.Handle("/health/readiness", httphealth.NewHandler(rt.readiness))
	root.Handle("/", h)

	rt.h = recoverPanics(b.log, otelhttp.NewHandler(root, "server"))

	b.log.DebugContext(
		ctx,
		"built web host",
		slogfield.String("addr", rt.addr),
		slogfield.Duration("shutdown_timeout", rt.shutdownTimeout),
		slogfield.Bool("throttling", !b.throttlingDisabled),
	)
	return rt, nil
}
