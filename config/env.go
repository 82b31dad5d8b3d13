// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"

	"github.com/z5labs/webhost/config/key"
)

// EnvOption configures an [Env] source.
type EnvOption func(*Env)

// EnvPrefix restricts the source to variables starting with prefix. The
// prefix is removed from the resulting keys.
func EnvPrefix(prefix string) EnvOption {
	return func(e *Env) {
		e.prefix = prefix
	}
}

// EnvSeparator sets the separator nesting variable names into key chains.
// It defaults to a double underscore, so HOSTING__SERVICEURL sets hosting.serviceurl.
func EnvSeparator(sep string) EnvOption {
	return func(e *Env) {
		e.sep = sep
	}
}

// EnvironFunc replaces [os.Environ] as the provider of variables.
func EnvironFunc(f func() []string) EnvOption {
	return func(e *Env) {
		e.environ = f
	}
}

// Env represents a Source where its underlying values
// are extracted from environment variables.
type Env struct {
	environ func() []string
	prefix  string
	sep     string
}

// FromEnv returns a Source which will apply its config
// from the environment variables available to the
// current process.
func FromEnv(opts ...EnvOption) Env {
	e := Env{
		environ: os.Environ,
		sep:     "__",
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Apply implements the Source interface.
func (src Env) Apply(store Store) error {
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if src.prefix != "" {
			k, ok = strings.CutPrefix(k, src.prefix)
			if !ok {
				continue
			}
		}

		chain := key.Split(strings.ToLower(k), src.sep)
		if len(chain) == 0 {
			continue
		}
		err := store.Set(chain, v)
		if err != nil {
			return err
		}
	}
	return nil
}
