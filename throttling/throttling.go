// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package throttling assembles the admission configuration consumed by
// throttling middlewares from hosting environment facts and user choices.
package throttling

import (
	"fmt"
	"math"
	"net/http"
	"runtime"
	"sort"
	"time"
)

// Well-known request properties which quotas may be keyed by.
const (
	PropertyConsumer = "consumer"
	PropertyPriority = "priority"
	PropertyMethod   = "method"
	PropertyURL      = "url"
)

// CPUQuotaSource reports the CPU quota allotted to the application, if known.
type CPUQuotaSource interface {
	CPUQuota() (float64, bool)
}

// ResolveConcurrencyUnits returns the number of cores capacity is computed
// from: the quota rounded up when it is known and positive, otherwise the
// number of logical CPUs.
func ResolveConcurrencyUnits(quota float64, ok bool) int {
	if !ok || quota <= 0 || math.IsNaN(quota) || math.IsInf(quota, 0) {
		return runtime.NumCPU()
	}
	return int(math.Ceil(quota))
}

// Essentials are the global admission limits.
type Essentials struct {
	// CapacityPerCore is the number of requests allowed in flight per core.
	CapacityPerCore int `config:"capacityPerCore"`

	// CapacityLimit, when positive, overrides the per core capacity.
	CapacityLimit int `config:"capacityLimit"`

	// QueueLimit is the number of requests allowed to wait for capacity.
	QueueLimit int `config:"queueLimit"`

	// QueueWait bounds how long a request waits for capacity. The request's
	// own timeout bounds it further.
	QueueWait time.Duration `config:"queueWait"`
}

// DefaultEssentials returns the essentials used when none are configured.
func DefaultEssentials() Essentials {
	return Essentials{
		CapacityPerCore: 50,
		QueueLimit:      100,
		QueueWait:       5 * time.Second,
	}
}

// PropertyQuotaOptions limits how much of the capacity requests sharing a
// property value may consume.
type PropertyQuotaOptions struct {
	// MaxConsumedFraction applies to every value without an individual limit.
	// Zero means unlimited.
	MaxConsumedFraction float64 `config:"maxConsumedFraction"`

	// IndividualLimits are fractions of capacity per property value.
	IndividualLimits map[string]float64 `config:"individualLimits"`

	// Blacklist values are always rejected.
	Blacklist []string `config:"blacklist"`

	// Whitelist values are never limited by this quota.
	Whitelist []string `config:"whitelist"`
}

// State is the admission state quotas are checked against.
type State interface {
	Capacity() int
	Consumed() int
	ConsumedBy(property, value string) int
}

// Verdict is the result of a quota check.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Allow is the verdict of a quota which admits a request.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Reject is the verdict of a quota which refuses a request.
func Reject(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Quota decides whether a request, described by its properties, may consume
// one more unit of capacity.
type Quota interface {
	Check(properties map[string]string, state State) Verdict
}

// QuotaFunc is a functional implementation of the [Quota] interface.
type QuotaFunc func(map[string]string, State) Verdict

// Check implements the [Quota] interface.
func (f QuotaFunc) Check(properties map[string]string, state State) Verdict {
	return f(properties, state)
}

// PropertyQuota enforces [PropertyQuotaOptions] for a single property.
type PropertyQuota struct {
	Property string
	Options  PropertyQuotaOptions
}

// Check implements the [Quota] interface.
func (q PropertyQuota) Check(properties map[string]string, state State) Verdict {
	value, ok := properties[q.Property]
	if !ok {
		return Allow()
	}
	for _, v := range q.Options.Blacklist {
		if v == value {
			return Reject(fmt.Sprintf("%s %q is blacklisted", q.Property, value))
		}
	}
	for _, v := range q.Options.Whitelist {
		if v == value {
			return Allow()
		}
	}

	fraction, ok := q.Options.IndividualLimits[value]
	if !ok {
		fraction = q.Options.MaxConsumedFraction
	}
	if fraction <= 0 {
		return Allow()
	}

	limit := max(1, int(fraction*float64(state.Capacity())))
	if state.ConsumedBy(q.Property, value) >= limit {
		return Reject(fmt.Sprintf("%s %q exceeded its quota of %d", q.Property, value, limit))
	}
	return Allow()
}

// PropertyFunc derives an additional property from a request.
type PropertyFunc func(*http.Request) (name, value string, ok bool)

// Settings control how throttled requests are answered.
type Settings struct {
	// RejectionResponseCode is written for every rejected request.
	RejectionResponseCode int

	// AdditionalProperties extend the well-known request properties.
	AdditionalProperties []PropertyFunc
}

// DefaultSettings returns the settings customizations are applied to.
func DefaultSettings() Settings {
	return Settings{
		RejectionResponseCode: http.StatusTooManyRequests,
	}
}

// Config is the admission configuration.
type Config struct {
	NumberOfCores  int
	Essentials     Essentials
	PropertyQuotas map[string]PropertyQuotaOptions
	CustomQuotas   []Quota
}

// Capacity returns the number of requests allowed in flight.
func (c Config) Capacity() int {
	if c.Essentials.CapacityLimit > 0 {
		return c.Essentials.CapacityLimit
	}
	return c.Essentials.CapacityPerCore * c.NumberOfCores
}

// Quotas returns the property quotas, ordered by property name, followed by
// the custom quotas in registration order.
func (c Config) Quotas() []Quota {
	names := make([]string, 0, len(c.PropertyQuotas))
	for name := range c.PropertyQuotas {
		names = append(names, name)
	}
	sort.Strings(names)

	quotas := make([]Quota, 0, len(names)+len(c.CustomQuotas))
	for _, name := range names {
		quotas = append(quotas, PropertyQuota{Property: name, Options: c.PropertyQuotas[name]})
	}
	return append(quotas, c.CustomQuotas...)
}

// InvalidConfigError describes an unusable admission configuration.
type InvalidConfigError struct {
	Reason string
}

// Error implements the [builtin.error] interface.
func (e InvalidConfigError) Error() string {
	return "invalid throttling config: " + e.Reason
}

// Validate reports whether c can be enforced.
func (c Config) Validate() error {
	if c.Capacity() <= 0 {
		return InvalidConfigError{Reason: "capacity must be positive"}
	}
	if c.Essentials.QueueLimit < 0 {
		return InvalidConfigError{Reason: "queue limit must not be negative"}
	}
	if c.Essentials.QueueWait < 0 {
		return InvalidConfigError{Reason: "queue wait must not be negative"}
	}
	for name, opts := range c.PropertyQuotas {
		if opts.MaxConsumedFraction < 0 || opts.MaxConsumedFraction > 1 {
			return InvalidConfigError{Reason: fmt.Sprintf("max consumed fraction of %s must be within [0, 1]", name)}
		}
		for value, fraction := range opts.IndividualLimits {
			if fraction < 0 || fraction > 1 {
				return InvalidConfigError{Reason: fmt.Sprintf("limit of %s %q must be within [0, 1]", name, value)}
			}
		}
	}
	return nil
}
