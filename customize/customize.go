// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package customize provides an ordered accumulator of settings transformations.
package customize

// Customization accumulates transformations of a settings value of type T.
// Transformations are applied in registration order when [Customization.Apply]
// is called, each one receiving the output of the previous.
//
// The zero value is ready to use.
type Customization[T any] struct {
	fs []func(T) T
}

// Add registers a transformation. A nil f is ignored.
func (c *Customization[T]) Add(f func(T) T) {
	if f == nil {
		return
	}
	c.fs = append(c.fs, f)
}

// Len returns the number of registered transformations.
func (c *Customization[T]) Len() int {
	return len(c.fs)
}

// Apply runs every registered transformation against v and returns the result.
func (c *Customization[T]) Apply(v T) T {
	for _, f := range c.fs {
		v = f(v)
	}
	return v
}
