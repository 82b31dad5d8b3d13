// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package ptr provides helpers for optional config values, which are
// modelled as pointers so an unset value differs from a zero one.
package ptr

// Ref returns a reference of the given value.
func Ref[T any](t T) *T {
	return &t
}

// Or returns the value t points to, or def when t is nil.
func Or[T any](t *T, def T) T {
	if t == nil {
		return def
	}
	return *t
}

// Get reports the value t points to and whether it was set.
func Get[T any](t *T) (T, bool) {
	var zero T
	if t == nil {
		return zero, false
	}
	return *t, true
}
