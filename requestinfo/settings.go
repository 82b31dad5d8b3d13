// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package requestinfo

import (
	"fmt"
	"time"
)

// DefaultTimeout is the timeout assigned to requests which do not declare one
// when the default settings are used.
const DefaultTimeout = 20 * time.Second

// Settings configures how [Classify] resolves each field of a [RequestInfo].
//
// Additional providers are consulted, in order, only when the well-known
// header is absent or malformed. The default providers are mandatory and
// terminate the timeout and priority chains.
type Settings struct {
	AdditionalTimeoutProviders        []Provider[time.Duration]
	AdditionalPriorityProviders       []Provider[Priority]
	AdditionalClientIdentityProviders []Provider[string]

	DefaultTimeoutProvider  DefaultProvider[time.Duration]
	DefaultPriorityProvider DefaultProvider[Priority]
}

// DefaultSettings returns settings with no additional providers, a
// [DefaultTimeout] timeout and [Ordinary] priority.
func DefaultSettings() Settings {
	return Settings{
		DefaultTimeoutProvider:  Constant(DefaultTimeout),
		DefaultPriorityProvider: Constant(Ordinary),
	}
}

// MissingDefaultProviderError means one of the mandatory default providers is nil.
type MissingDefaultProviderError struct {
	Field string
}

// Error implements the [builtin.error] interface.
func (e MissingDefaultProviderError) Error() string {
	return fmt.Sprintf("missing default %s provider", e.Field)
}

// Validate reports whether the mandatory default providers are configured.
func (s Settings) Validate() error {
	if s.DefaultTimeoutProvider == nil {
		return MissingDefaultProviderError{Field: "timeout"}
	}
	if s.DefaultPriorityProvider == nil {
		return MissingDefaultProviderError{Field: "priority"}
	}
	return nil
}
