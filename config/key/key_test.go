// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChain_Key(t *testing.T) {
	t.Run("will join names with a dot", func(t *testing.T) {
		k := Chain{Name("hosting"), Name("serviceUrl")}
		if !assert.Equal(t, "hosting.serviceUrl", k.Key()) {
			return
		}
	})
}

func TestSplit(t *testing.T) {
	t.Run("will drop empty segments", func(t *testing.T) {
		k := Split("hosting____serviceUrl__", "__")
		if !assert.Equal(t, Chain{Name("hosting"), Name("serviceUrl")}, k) {
			return
		}
	})
}
