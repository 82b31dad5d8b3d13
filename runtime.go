// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package webhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/internal/try"
	"github.com/z5labs/webhost/pkg/health"
	"github.com/z5labs/webhost/pkg/slogfield"

	"golang.org/x/sync/errgroup"
)

// Runtime serves the request pipeline assembled by a [Builder].
type Runtime struct {
	addr   string
	listen func(string, string) (net.Listener, error)

	log    *slog.Logger
	root   *flow.Store
	h      http.Handler
	server ServerSettings

	shutdownTimeout time.Duration

	warmupServices []func(context.Context) error
	warmups        []func(context.Context) error

	started   *health.Binary
	liveness  *health.Binary
	readiness *health.Binary
}

// ServeHTTP implements the [http.Handler] interface by running r through
// the request pipeline without a listener.
func (rt *Runtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := flow.FromContext(ctx); !ok {
		r = r.WithContext(flow.WithStore(ctx, rt.root))
	}
	rt.h.ServeHTTP(w, r)
}

// Ready reports whether the runtime is serving and every warmup succeeded.
func (rt *Runtime) Ready(ctx context.Context) bool {
	return rt.readiness.Healthy(ctx)
}

// WarmupError is returned when a warmup fails.
type WarmupError struct {
	Stage string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e WarmupError) Error() string {
	return fmt.Sprintf("failed to warm up %s: %s", e.Stage, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e WarmupError) Unwrap() error {
	return e.Cause
}

// Run serves requests until ctx is cancelled and then shuts the server
// down, waiting for in-flight requests no longer than the cut shutdown
// timeout of the hosting environment.
func (rt *Runtime) Run(ctx context.Context) error {
	for _, f := range rt.warmupServices {
		err := warmup(ctx, f)
		if err != nil {
			rt.log.ErrorContext(ctx, "failed to warm up services", slogfield.Error(err))
			return WarmupError{Stage: "services", Cause: err}
		}
	}

	listen := rt.listen
	if listen == nil {
		listen = net.Listen
	}
	ls, err := listen("tcp", rt.addr)
	if err != nil {
		rt.log.ErrorContext(ctx, "failed to listen for connections", slogfield.Error(err))
		return err
	}

	s := &http.Server{
		Handler:           rt.h,
		ReadTimeout:       rt.server.ReadTimeout,
		ReadHeaderTimeout: rt.server.ReadHeaderTimeout,
		WriteTimeout:      rt.server.WriteTimeout,
		IdleTimeout:       rt.server.IdleTimeout,
		MaxHeaderBytes:    rt.server.MaxHeaderBytes,
		BaseContext: func(net.Listener) context.Context {
			return flow.WithStore(context.Background(), rt.root)
		},
		ErrorLog: slog.NewLogLogger(rt.log.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		rt.readiness.Set(false)

		ctx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout)
		defer cancel()
		defer rt.log.Info("shut down service")

		rt.log.Info("shutting down service", slogfield.Duration("timeout", rt.shutdownTimeout))
		return s.Shutdown(ctx)
	})
	g.Go(func() error {
		rt.started.Set(true)
		rt.liveness.Set(true)
		rt.log.Info("started service", slogfield.String("addr", ls.Addr().String()))

		err := s.Serve(ls)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for _, f := range rt.warmups {
			err := warmup(gctx, f)
			if err != nil && gctx.Err() != nil {
				return nil
			}
			if err != nil {
				return WarmupError{Stage: "application", Cause: err}
			}
		}
		rt.readiness.Set(true)
		rt.log.Info("service is ready")
		return nil
	})

	err = g.Wait()
	if err == nil {
		return nil
	}
	rt.log.Error("service encountered unexpected error", slogfield.Error(err))
	return err
}

func warmup(ctx context.Context, f func(context.Context) error) (err error) {
	defer try.Recover(&err)
	return f(ctx)
}
