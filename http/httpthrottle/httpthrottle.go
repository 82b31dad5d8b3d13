// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpthrottle provides a http middleware which admits requests
// according to a [throttling.Config].
package httpthrottle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/z5labs/webhost/pkg/noop"
	"github.com/z5labs/webhost/pkg/slogfield"
	"github.com/z5labs/webhost/requestinfo"
	"github.com/z5labs/webhost/throttling"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// Rejection reasons, as reported by the rejections metric.
const (
	ReasonQueueLimit   = "queue_limit"
	ReasonQueueTimeout = "queue_timeout"
	ReasonCanceled     = "canceled"
	ReasonQuota        = "quota"
)

type options struct {
	logHandler slog.Handler
	registerer prometheus.Registerer
	namespace  string
}

// Option configures the [Throttler].
type Option func(*options)

// LogHandler configures the handler used for rejection logs.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Registerer registers the throttling metrics with r.
func Registerer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// Namespace prefixes the names of the throttling metrics.
func Namespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// Throttler admits requests into a bounded amount of capacity. Requests
// which find no free capacity wait in a bounded queue.
type Throttler struct {
	log      *slog.Logger
	cfg      throttling.Config
	settings throttling.Settings
	quotas   []throttling.Quota
	capacity int

	sem *semaphore.Weighted

	mu       sync.Mutex
	queued   int
	consumed int
	by       map[string]map[string]int

	inFlight  prometheus.Gauge
	queue     prometheus.Gauge
	rejected  *prometheus.CounterVec
	capGauge  prometheus.Gauge
	collected []prometheus.Collector
}

// New returns a [Throttler] enforcing cfg.
func New(cfg throttling.Config, settings throttling.Settings, opts ...Option) (*Throttler, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	o := &options{
		logHandler: noop.LogHandler{},
		namespace:  "webhost",
	}
	for _, opt := range opts {
		opt(o)
	}

	capacity := cfg.Capacity()
	t := &Throttler{
		log:      slog.New(o.logHandler),
		cfg:      cfg,
		settings: settings,
		quotas:   cfg.Quotas(),
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
		by:       make(map[string]map[string]int),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Subsystem: "throttling",
			Name:      "in_flight_requests",
			Help:      "Requests currently holding capacity",
		}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Subsystem: "throttling",
			Name:      "queued_requests",
			Help:      "Requests currently waiting for capacity",
		}),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Subsystem: "throttling",
				Name:      "rejected_requests_total",
				Help:      "Rejected requests",
			},
			[]string{"reason"},
		),
		capGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Subsystem: "throttling",
			Name:      "capacity",
			Help:      "Requests allowed in flight",
		}),
	}
	t.capGauge.Set(float64(capacity))
	t.collected = []prometheus.Collector{t.inFlight, t.queue, t.rejected, t.capGauge}

	if o.registerer == nil {
		return t, nil
	}
	for _, c := range t.collected {
		err = errors.Join(err, o.registerer.Register(c))
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Capacity implements the [throttling.State] interface.
func (t *Throttler) Capacity() int {
	return t.capacity
}

// Consumed implements the [throttling.State] interface.
// It must be called with t.mu held when used by a quota check.
func (t *Throttler) Consumed() int {
	return t.consumed
}

// ConsumedBy implements the [throttling.State] interface.
func (t *Throttler) ConsumedBy(property, value string) int {
	return t.by[property][value]
}

// Queued returns the number of requests waiting for capacity.
func (t *Throttler) Queued() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queued
}

// RejectedError is returned by [Throttler.Acquire] when a request is not admitted.
type RejectedError struct {
	Reason string
	Detail string
}

// Error implements the [builtin.error] interface.
func (e RejectedError) Error() string {
	if e.Detail == "" {
		return "request rejected: " + e.Reason
	}
	return "request rejected: " + e.Reason + ": " + e.Detail
}

// Acquire admits a request with the given properties, waiting in the queue
// for no longer than timeout. The returned release func must be called once
// the request completes.
func (t *Throttler) Acquire(ctx context.Context, properties map[string]string, timeout time.Duration) (func(), error) {
	if !t.sem.TryAcquire(1) {
		err := t.wait(ctx, timeout)
		if err != nil {
			return nil, err
		}
	}

	t.mu.Lock()
	for _, q := range t.quotas {
		v := q.Check(properties, t)
		if v.Allowed {
			continue
		}
		t.mu.Unlock()
		t.sem.Release(1)
		t.rejected.WithLabelValues(ReasonQuota).Inc()
		return nil, RejectedError{Reason: ReasonQuota, Detail: v.Reason}
	}
	t.consumed++
	for name, value := range properties {
		m, ok := t.by[name]
		if !ok {
			m = make(map[string]int)
			t.by[name] = m
		}
		m[value]++
	}
	t.mu.Unlock()
	t.inFlight.Inc()

	var once sync.Once
	return func() {
		once.Do(func() { t.release(properties) })
	}, nil
}

func (t *Throttler) wait(ctx context.Context, timeout time.Duration) error {
	t.mu.Lock()
	if t.queued >= t.cfg.Essentials.QueueLimit {
		t.mu.Unlock()
		t.rejected.WithLabelValues(ReasonQueueLimit).Inc()
		return RejectedError{Reason: ReasonQueueLimit}
	}
	t.queued++
	t.mu.Unlock()
	t.queue.Inc()

	defer func() {
		t.mu.Lock()
		t.queued--
		t.mu.Unlock()
		t.queue.Dec()
	}()

	wait := t.cfg.Essentials.QueueWait
	if timeout > 0 && timeout < wait {
		wait = timeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	err := t.sem.Acquire(waitCtx, 1)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		t.rejected.WithLabelValues(ReasonCanceled).Inc()
		return RejectedError{Reason: ReasonCanceled}
	}
	t.rejected.WithLabelValues(ReasonQueueTimeout).Inc()
	return RejectedError{Reason: ReasonQueueTimeout}
}

func (t *Throttler) release(properties map[string]string) {
	t.mu.Lock()
	t.consumed--
	for name, value := range properties {
		m := t.by[name]
		m[value]--
		if m[value] <= 0 {
			delete(m, value)
		}
	}
	t.mu.Unlock()
	t.inFlight.Dec()
	t.sem.Release(1)
}

// Properties returns the properties of r which quotas are checked against.
func (t *Throttler) Properties(r *http.Request) map[string]string {
	props := map[string]string{
		throttling.PropertyMethod: r.Method,
		throttling.PropertyURL:    r.URL.Path,
	}
	if info, ok := requestinfo.FromContext(r.Context()); ok {
		props[throttling.PropertyPriority] = info.Priority.String()
		if info.ClientApplicationIdentity != "" {
			props[throttling.PropertyConsumer] = info.ClientApplicationIdentity
		}
	}
	for _, f := range t.settings.AdditionalProperties {
		name, value, ok := f(r)
		if ok {
			props[name] = value
		}
	}
	return props
}

// Middleware answers requests which are not admitted with the configured
// rejection status code.
func (t *Throttler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var timeout time.Duration
		if info, ok := requestinfo.FromContext(ctx); ok {
			timeout = info.Timeout
		}

		props := t.Properties(r)
		release, err := t.Acquire(ctx, props, timeout)
		if err != nil {
			t.log.WarnContext(
				ctx,
				"rejected request",
				slogfield.String("method", r.Method),
				slogfield.String("path", r.URL.Path),
				slogfield.Error(err),
			)
			w.WriteHeader(t.settings.RejectionResponseCode)
			return
		}
		defer release()

		next.ServeHTTP(w, r)
	})
}
