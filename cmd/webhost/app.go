// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/z5labs/webhost"
	"github.com/z5labs/webhost/http/httpclient"
	"github.com/z5labs/webhost/http/httpflow"
	"github.com/z5labs/webhost/http/httpvalidate"
	"github.com/z5labs/webhost/pkg/maskslog"
	"github.com/z5labs/webhost/pkg/otelconfig"
	"github.com/z5labs/webhost/pkg/otelslog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type appConfig struct {
	webhost.Config `config:",squash"`

	Tracing otelconfig.Config `config:"tracing"`

	Masking struct {
		Keys []string `config:"keys"`
	} `config:"masking"`

	Downstream struct {
		URL     string        `config:"url"`
		Timeout time.Duration `config:"timeout"`
	} `config:"downstream"`
}

type app struct {
	zlog     *zap.Logger
	shutdown func(context.Context) error
}

func (a *app) setup(ctx context.Context, cfg appConfig, b *webhost.Builder) error {
	initializer, err := otelconfig.FromConfig(cfg.Tracing)
	if err != nil {
		return err
	}
	a.shutdown, err = otelconfig.Setup(ctx, initializer)
	if err != nil {
		return err
	}

	log := otelslog.New(maskslog.NewHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.Logging.Level,
		}),
		maskslog.Keys(cfg.Masking.Keys...),
	))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	identity := cfg.HostingEnvironment().ApplicationIdentity()

	b.Logger(log).
		MetricsRegisterer(reg).
		SetProperty(serviceProperty, identity).
		SetupDistributedContext(func(s httpflow.Settings) httpflow.Settings {
			s.AdditionalActions = append(s.AdditionalActions, requestIDAction())
			return s
		}).
		Use(echoRequestID).
		Handle("GET /request-info", requestInfoHandler()).
		Handle("/context", httpvalidate.Request(
			contextHandler(),
			httpvalidate.ForMethods(http.MethodGet),
			httpvalidate.MinimumParams("name"),
		)).
		Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).
		Warmup(func(ctx context.Context) error {
			log.InfoContext(ctx, "webhost is ready", slog.String("service", identity))
			return nil
		})

	if cfg.Downstream.URL == "" {
		return nil
	}

	client := httpclient.New(
		httpclient.Name("downstream"),
		httpclient.Timeout(cfg.Downstream.Timeout),
		httpclient.Logger(a.zlog),
		httpclient.Propagate(identity, httpclient.BaggageProperties(requestIDProperty)),
		httpclient.CircuitBreaker(),
		httpclient.RetryRequests(),
	)
	b.Handle("GET /downstream", downstreamHandler(client, cfg.Downstream.URL))
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(ctx)
}
