// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httphealth exposes health metrics over http.
package httphealth

import (
	"net/http"

	"github.com/z5labs/webhost/http/httpvalidate"
	"github.com/z5labs/webhost/pkg/health"
)

// NewHandler wraps a health.Metric into an http.Handler which only answers
// GET and HEAD requests.
//
// If m.Healthy returns true, then HTTP status code 200 is
// returned, else, HTTP status code 503 is returned.
func NewHandler(m health.Metric) http.Handler {
	if h, ok := m.(http.Handler); ok {
		return h
	}
	return httpvalidate.Request(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			if m.Healthy(r.Context()) {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		}),
		httpvalidate.ForMethods(http.MethodGet, http.MethodHead),
	)
}
