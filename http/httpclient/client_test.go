// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/z5labs/webhost/flow"
	"github.com/z5labs/webhost/requestinfo"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func captureHeaders(t *testing.T) (*httptest.Server, <-chan http.Header) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	t.Cleanup(srv.Close)
	return srv, headers
}

func ambientContext(t *testing.T) (context.Context, trace.SpanContext) {
	ctx, scope := flow.Begin(context.Background())
	t.Cleanup(scope.End)

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.Nil(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.Nil(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	flow.SetGlobalContext(ctx, sc)
	flow.SetGlobalContext(ctx, requestinfo.RequestInfo{
		Timeout:  20 * time.Second,
		Priority: requestinfo.Critical,
	})
	flow.SetProperty(ctx, "tenant", "acme")
	return ctx, sc
}

func TestPropagate(t *testing.T) {
	t.Run("will write the ambient request context", func(t *testing.T) {
		t.Run("if the inbound request was classified", func(t *testing.T) {
			srv, headers := captureHeaders(t)
			ctx, sc := ambientContext(t)

			client := New(Propagate("billing", BaggageProperties("tenant", "missing")))

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
			require.Nil(t, err)

			resp, err := client.Do(req)
			require.Nil(t, err)
			resp.Body.Close()

			h := <-headers
			if !assert.Equal(t, "20", h.Get(requestinfo.HeaderRequestTimeout)) {
				return
			}
			if !assert.Equal(t, "Critical", h.Get(requestinfo.HeaderRequestPriority)) {
				return
			}
			if !assert.Equal(t, "billing", h.Get(requestinfo.HeaderApplicationIdentity)) {
				return
			}
			if !assert.Contains(t, h.Get("traceparent"), sc.TraceID().String()) {
				return
			}
			if !assert.Equal(t, "tenant=acme", h.Get("baggage")) {
				return
			}
		})
	})

	t.Run("will send the remaining deadline", func(t *testing.T) {
		t.Run("if the context has one", func(t *testing.T) {
			srv, headers := captureHeaders(t)
			ctx, _ := ambientContext(t)

			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			client := New(Propagate(""))

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
			require.Nil(t, err)

			resp, err := client.Do(req)
			require.Nil(t, err)
			resp.Body.Close()

			h := <-headers
			d, ok := requestinfo.ParseTimeout(h.Get(requestinfo.HeaderRequestTimeout))
			if !assert.True(t, ok) {
				return
			}
			if !assert.LessOrEqual(t, d, 5*time.Second) {
				return
			}
			if !assert.Greater(t, d, time.Duration(0)) {
				return
			}
			if !assert.Empty(t, h.Get(requestinfo.HeaderApplicationIdentity)) {
				return
			}
		})
	})

	t.Run("will keep headers set by the caller", func(t *testing.T) {
		t.Run("if they are already present", func(t *testing.T) {
			srv, headers := captureHeaders(t)
			ctx, _ := ambientContext(t)

			client := New(Propagate("billing"))

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
			require.Nil(t, err)
			req.Header.Set(requestinfo.HeaderRequestPriority, "Low")

			resp, err := client.Do(req)
			require.Nil(t, err)
			resp.Body.Close()

			h := <-headers
			if !assert.Equal(t, "Low", h.Get(requestinfo.HeaderRequestPriority)) {
				return
			}
			if !assert.Empty(t, req.Header.Get(requestinfo.HeaderApplicationIdentity)) {
				return
			}
		})
	})
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("will open the circuit", func(t *testing.T) {
		t.Run("after consecutive failing status codes", func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			client := New(CircuitBreaker(TripAfter(2)))

			for range 2 {
				resp, err := client.Get(srv.URL)
				require.Nil(t, err)
				resp.Body.Close()
				if !assert.Equal(t, http.StatusInternalServerError, resp.StatusCode) {
					return
				}
			}

			_, err := client.Get(srv.URL)
			if !assert.ErrorIs(t, err, gobreaker.ErrOpenState) {
				return
			}
			if !assert.Equal(t, int32(2), hits.Load()) {
				return
			}
		})
	})
}

func TestRetryRequests(t *testing.T) {
	t.Run("will retry", func(t *testing.T) {
		t.Run("if the server is unavailable", func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			client := New(RetryRequests(
				MaxRetries(3),
				MinWaitDuration(time.Millisecond),
				MaxWaitDuration(5*time.Millisecond),
			))

			resp, err := client.Get(srv.URL)
			require.Nil(t, err)
			resp.Body.Close()

			if !assert.Equal(t, http.StatusOK, resp.StatusCode) {
				return
			}
			if !assert.Equal(t, int32(3), hits.Load()) {
				return
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the request has no url", func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, "", new(bytes.Buffer))
			require.Nil(t, err)

			resp, err := New(RetryRequests()).Do(req)
			if !assert.Nil(t, resp) {
				return
			}
			if !assert.Error(t, err) {
				return
			}
		})
	})
}
