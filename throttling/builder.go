// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package throttling

import (
	"github.com/z5labs/webhost/customize"
)

// Builder accumulates throttling choices. Values supplied through functions
// are resolved when [Builder.Build] is called.
type Builder struct {
	cpu        CPUQuotaSource
	essentials func() Essentials
	names      []string
	quotas     map[string]func() PropertyQuotaOptions
	custom     []Quota
	settings   customize.Customization[Settings]
}

// NewBuilder returns a builder which sizes capacity from the CPU quota
// reported by cpu. A nil cpu sizes capacity from the number of logical CPUs.
func NewBuilder(cpu CPUQuotaSource) *Builder {
	return &Builder{
		cpu:        cpu,
		essentials: DefaultEssentials,
		quotas:     make(map[string]func() PropertyQuotaOptions),
	}
}

// UseEssentials sets the global limits.
func (b *Builder) UseEssentials(e Essentials) *Builder {
	return b.UseEssentialsFunc(func() Essentials { return e })
}

// UseEssentialsFunc sets the global limits from f.
func (b *Builder) UseEssentialsFunc(f func() Essentials) *Builder {
	if f != nil {
		b.essentials = f
	}
	return b
}

// UsePropertyQuota limits the requests sharing a value of the named property.
// Setting the same property twice replaces the earlier options.
func (b *Builder) UsePropertyQuota(name string, opts PropertyQuotaOptions) *Builder {
	return b.UsePropertyQuotaFunc(name, func() PropertyQuotaOptions { return opts })
}

// UsePropertyQuotaFunc is like [Builder.UsePropertyQuota] with options from f.
func (b *Builder) UsePropertyQuotaFunc(name string, f func() PropertyQuotaOptions) *Builder {
	if f == nil {
		return b
	}
	if _, exists := b.quotas[name]; !exists {
		b.names = append(b.names, name)
	}
	b.quotas[name] = f
	return b
}

// UseCustomQuota registers an additional quota.
func (b *Builder) UseCustomQuota(q Quota) *Builder {
	if q != nil {
		b.custom = append(b.custom, q)
	}
	return b
}

// CustomizeSettings registers a transformation of the [Settings].
func (b *Builder) CustomizeSettings(f func(Settings) Settings) *Builder {
	b.settings.Add(f)
	return b
}

// Build resolves the configuration and applies the settings customizations
// to [DefaultSettings].
func (b *Builder) Build() (Config, Settings) {
	var (
		quota float64
		ok    bool
	)
	if b.cpu != nil {
		quota, ok = b.cpu.CPUQuota()
	}

	cfg := Config{
		NumberOfCores:  ResolveConcurrencyUnits(quota, ok),
		Essentials:     b.essentials(),
		PropertyQuotas: make(map[string]PropertyQuotaOptions, len(b.names)),
		CustomQuotas:   append([]Quota(nil), b.custom...),
	}
	for _, name := range b.names {
		cfg.PropertyQuotas[name] = b.quotas[name]()
	}
	return cfg, b.settings.Apply(DefaultSettings())
}
