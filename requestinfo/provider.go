// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package requestinfo

import "net/http"

// Provider tries to resolve a value of type T from an inbound request.
// The boolean result reports whether a value was resolved.
type Provider[T any] interface {
	Resolve(*http.Request) (T, bool)
}

// ProviderFunc is a functional implementation of the [Provider] interface.
type ProviderFunc[T any] func(*http.Request) (T, bool)

// Resolve implements the [Provider] interface.
func (f ProviderFunc[T]) Resolve(r *http.Request) (T, bool) {
	return f(r)
}

// DefaultProvider always resolves a value of type T. It terminates a provider chain.
type DefaultProvider[T any] func(*http.Request) T

// Constant returns a [DefaultProvider] which always returns v.
func Constant[T any](v T) DefaultProvider[T] {
	return func(*http.Request) T {
		return v
	}
}

func resolveFirst[T any](r *http.Request, providers []Provider[T]) (T, bool) {
	for _, p := range providers {
		if p == nil {
			continue
		}
		v, ok := p.Resolve(r)
		if ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// HeaderProvider resolves a non-empty header value verbatim.
func HeaderProvider(name string) Provider[string] {
	return ProviderFunc[string](func(r *http.Request) (string, bool) {
		v := r.Header.Get(name)
		return v, v != ""
	})
}

// QueryProvider resolves a non-empty query parameter value verbatim.
func QueryProvider(name string) Provider[string] {
	return ProviderFunc[string](func(r *http.Request) (string, bool) {
		v := r.URL.Query().Get(name)
		return v, v != ""
	})
}
