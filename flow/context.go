// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package flow

import "context"

// SetProperty sets a property on the store carried by ctx.
// It's a no-op if ctx does not carry a store.
func SetProperty(ctx context.Context, key string, value any) {
	s, ok := FromContext(ctx)
	if !ok {
		return
	}
	s.SetProperty(key, value)
}

// Property returns a property from the store carried by ctx.
func Property(ctx context.Context, key string) (any, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	return s.Property(key)
}

// StringProperty returns a property from the store carried by ctx
// if it is present and holds a string.
func StringProperty(ctx context.Context, key string) (string, bool) {
	v, ok := Property(ctx, key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Properties returns a snapshot of the properties carried by ctx.
func Properties(ctx context.Context) map[string]any {
	s, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return s.Properties()
}

// RemoveProperty removes a property from the store carried by ctx.
func RemoveProperty(ctx context.Context, key string) {
	s, ok := FromContext(ctx)
	if !ok {
		return
	}
	s.RemoveProperty(key)
}

// SetGlobalContext sets the global of type T on the store carried by ctx.
// It's a no-op if ctx does not carry a store.
func SetGlobalContext[T any](ctx context.Context, v T) {
	s, ok := FromContext(ctx)
	if !ok {
		return
	}
	SetGlobal(s, v)
}

// GlobalContext returns the global of type T from the store carried by ctx.
func GlobalContext[T any](ctx context.Context) (T, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		var zero T
		return zero, false
	}
	return Global[T](s)
}
