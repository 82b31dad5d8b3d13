// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package customize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomization_Apply(t *testing.T) {
	t.Run("will return the given value", func(t *testing.T) {
		t.Run("if no transformations are registered", func(t *testing.T) {
			var c Customization[[]string]

			v := c.Apply([]string{"a"})
			if !assert.Equal(t, []string{"a"}, v) {
				return
			}
		})

		t.Run("if only nil transformations are registered", func(t *testing.T) {
			var c Customization[int]
			c.Add(nil)

			if !assert.Equal(t, 0, c.Len()) {
				return
			}
			if !assert.Equal(t, 7, c.Apply(7)) {
				return
			}
		})
	})

	t.Run("will apply transformations in registration order", func(t *testing.T) {
		var c Customization[[]string]
		c.Add(func(s []string) []string { return append(s, "first") })
		c.Add(func(s []string) []string { return append(s, "second") })

		v := c.Apply(nil)
		if !assert.Equal(t, []string{"first", "second"}, v) {
			return
		}
	})
}
