// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health provides composable health metrics.
package health

import (
	"context"
	"sync/atomic"
)

// Metric reports whether some part of the application is healthy.
type Metric interface {
	Healthy(context.Context) bool
}

// MetricFunc is a functional implementation of the [Metric] interface.
type MetricFunc func(context.Context) bool

// Healthy implements the [Metric] interface.
func (f MetricFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// Binary is a [Metric] which is either healthy or not. The zero value is
// unhealthy.
type Binary struct {
	healthy atomic.Bool
}

// NewBinary returns a [Binary] in the given state.
func NewBinary(healthy bool) *Binary {
	var b Binary
	b.Set(healthy)
	return &b
}

// Set changes the state of the metric.
func (m *Binary) Set(healthy bool) {
	m.healthy.Store(healthy)
}

// Toggle flips the state of the metric.
func (m *Binary) Toggle() {
	for {
		old := m.healthy.Load()
		if m.healthy.CompareAndSwap(old, !old) {
			return
		}
	}
}

// Healthy implements the [Metric] interface.
func (m *Binary) Healthy(ctx context.Context) bool {
	return m.healthy.Load()
}

// And is healthy only if every metric is healthy.
func And(metrics ...Metric) Metric {
	return MetricFunc(func(ctx context.Context) bool {
		for _, metric := range metrics {
			if !metric.Healthy(ctx) {
				return false
			}
		}
		return true
	})
}

// Or is healthy if any metric is healthy.
func Or(metrics ...Metric) Metric {
	return MetricFunc(func(ctx context.Context) bool {
		for _, metric := range metrics {
			if metric.Healthy(ctx) {
				return true
			}
		}
		return false
	})
}

// Not inverts metric.
func Not(metric Metric) Metric {
	return MetricFunc(func(ctx context.Context) bool {
		return !metric.Healthy(ctx)
	})
}
