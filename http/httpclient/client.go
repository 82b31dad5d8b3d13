// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpclient provides an http.Client which carries the ambient
// request context of an inbound request to the services it calls.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type options struct {
	name       string
	timeout    time.Duration
	transport  http.RoundTripper
	logger     *zap.Logger
	propagator propagation.TextMapPropagator

	propagate *propagateOptions
	circuit   *circuitOptions
	retry     *retryOptions
}

// Option configures the client returned by [New].
type Option func(*options)

// Name names the client in logs and circuit breaker state changes.
func Name(s string) Option {
	return func(o *options) {
		o.name = s
	}
}

// Timeout bounds every attempt of a request.
func Timeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Transport sets the base http.RoundTripper. Default is [http.DefaultTransport].
func Transport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// Logger sets the logger for requests, retries and circuit state changes.
func Logger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Propagator sets the propagator which writes the distributed context
// envelope. Default is W3C trace context and baggage.
func Propagator(p propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.propagator = p
	}
}

// New returns an http.Client which creates a client span per attempt and,
// depending on the options, propagates the ambient request context, guards
// the target with a circuit breaker and retries failed requests.
func New(opts ...Option) *http.Client {
	o := &options{
		transport: http.DefaultTransport,
		logger:    zap.NewNop(),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger
	if o.name != "" {
		log = log.Named(o.name)
	}

	rt := o.transport
	if o.circuit != nil {
		rt = newCircuitRoundTripper(rt, o.name, log, o.circuit)
	}
	rt = &logRoundTripper{base: rt, log: log}
	rt = otelhttp.NewTransport(rt, otelhttp.WithPropagators(o.propagator))
	if o.propagate != nil {
		rt = &propagateRoundTripper{base: rt, opts: o.propagate}
	}

	c := &http.Client{
		Timeout:   o.timeout,
		Transport: rt,
	}
	if o.retry == nil {
		return c
	}

	ro := o.retry
	rc := &retryablehttp.Client{
		HTTPClient:   c,
		Logger:       nil,
		RetryWaitMin: ro.waitMin,
		RetryWaitMax: ro.waitMax,
		RetryMax:     ro.maxRetries,
		RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt == 0 {
				return
			}
			log.Info(
				"retrying http request",
				zap.String("url", req.URL.String()),
				zap.Int("request_attempt_count", attempt),
			)
		},
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	return rc.StandardClient()
}

type logRoundTripper struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (rt *logRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		rt.log.Warn(
			"http request failed",
			zap.String("url", req.URL.String()),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	rt.log.Debug(
		"received http response",
		zap.String("url", req.URL.String()),
		zap.Int("http_status_code", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

type retryOptions struct {
	maxRetries int
	waitMin    time.Duration
	waitMax    time.Duration
}

// RetryOption configures [RetryRequests].
type RetryOption func(*retryOptions)

// MinWaitDuration is the minimum backoff between attempts.
func MinWaitDuration(min time.Duration) RetryOption {
	return func(ro *retryOptions) {
		ro.waitMin = min
	}
}

// MaxWaitDuration is the maximum backoff between attempts.
func MaxWaitDuration(max time.Duration) RetryOption {
	return func(ro *retryOptions) {
		ro.waitMax = max
	}
}

// MaxRetries is the number of attempts after the first one.
func MaxRetries(n int) RetryOption {
	return func(ro *retryOptions) {
		ro.maxRetries = n
	}
}

// RetryRequests retries requests which failed to connect or were answered
// with a retryable status code.
func RetryRequests(opts ...RetryOption) Option {
	return func(o *options) {
		ro := &retryOptions{
			waitMin:    100 * time.Millisecond,
			waitMax:    5 * time.Second,
			maxRetries: 2,
		}
		for _, opt := range opts {
			opt(ro)
		}
		o.retry = ro
	}
}
