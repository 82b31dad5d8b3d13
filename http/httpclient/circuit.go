// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpclient

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type circuitOptions struct {
	maxRequests uint32
	interval    time.Duration
	timeout     time.Duration
	tripCount   uint32
	statusCodes []int
}

// CircuitOption configures [CircuitBreaker].
type CircuitOption func(*circuitOptions)

// HalfOpenRequests is the maximum number of requests allowed to pass through
// when the circuit is half-open.
func HalfOpenRequests(n uint32) CircuitOption {
	return func(co *circuitOptions) {
		co.maxRequests = n
	}
}

// OpenStateTimeout is the period of the open state, after which the circuit
// becomes half-open.
func OpenStateTimeout(d time.Duration) CircuitOption {
	return func(co *circuitOptions) {
		co.timeout = d
	}
}

// CountResetInterval is the cyclic period of the closed state after which
// failure counts are cleared. Zero never clears them.
func CountResetInterval(d time.Duration) CircuitOption {
	return func(co *circuitOptions) {
		co.interval = d
	}
}

// TripAfter is the number of consecutive failures which opens the circuit.
func TripAfter(n uint32) CircuitOption {
	return func(co *circuitOptions) {
		co.tripCount = n
	}
}

// FailOnStatusCode counts responses with the status code as failures.
//
// Default: 500, 502, 503, 504
func FailOnStatusCode(code int) CircuitOption {
	return func(co *circuitOptions) {
		co.statusCodes = append(co.statusCodes, code)
	}
}

// CircuitBreaker stops sending requests to a target which keeps failing.
// Requests sent while the circuit is open fail with [gobreaker.ErrOpenState].
func CircuitBreaker(opts ...CircuitOption) Option {
	return func(o *options) {
		co := &circuitOptions{
			maxRequests: 1,
			timeout:     60 * time.Second,
			tripCount:   5,
		}
		for _, opt := range opts {
			opt(co)
		}
		if len(co.statusCodes) == 0 {
			co.statusCodes = append(
				co.statusCodes,
				http.StatusInternalServerError, // 500
				http.StatusBadGateway,          // 502
				http.StatusServiceUnavailable,  // 503
				http.StatusGatewayTimeout,      // 504
			)
		}
		o.circuit = co
	}
}

type statusCodeError struct {
	code int
}

func (e statusCodeError) Error() string {
	return http.StatusText(e.code)
}

type circuitRoundTripper struct {
	base  http.RoundTripper
	cb    *gobreaker.CircuitBreaker
	codes map[int]struct{}
}

func newCircuitRoundTripper(base http.RoundTripper, name string, log *zap.Logger, co *circuitOptions) *circuitRoundTripper {
	codes := make(map[int]struct{}, len(co.statusCodes))
	for _, code := range co.statusCodes {
		codes[code] = struct{}{}
	}

	return &circuitRoundTripper{
		base:  base,
		codes: codes,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: co.maxRequests,
			Interval:    co.interval,
			Timeout:     co.timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= co.tripCount
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				switch to {
				case gobreaker.StateOpen:
					log.Error("circuit has been opened")
				case gobreaker.StateHalfOpen:
					log.Warn(
						"circuit is now half open and letting some requests through",
						zap.Uint32("max_requests_allowed_through", co.maxRequests),
					)
				case gobreaker.StateClosed:
					log.Info("circuit has been closed")
				}
			},
		}),
	}
}

func (rt *circuitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	v, err := rt.cb.Execute(func() (interface{}, error) {
		resp, err := rt.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if _, ok := rt.codes[resp.StatusCode]; ok {
			return resp, statusCodeError{code: resp.StatusCode}
		}
		return resp, nil
	})

	var serr statusCodeError
	if errors.As(err, &serr) {
		return v.(*http.Response), nil
	}
	if err != nil {
		return nil, err
	}
	return v.(*http.Response), nil
}
