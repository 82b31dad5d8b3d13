// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package webhost

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/z5labs/webhost/config"
	"github.com/z5labs/webhost/hosting"
	"github.com/z5labs/webhost/internal/try"
)

// Config is the configuration every hosted application reads. Embed it,
// with the squash option, in the application's own config type.
type Config struct {
	Hosting hosting.Config `config:"hosting"`

	Logging struct {
		Level slog.Level `config:"level"`
	} `config:"logging"`
}

// HostingEnvironment implements the [Configurer] interface.
func (c Config) HostingEnvironment() hosting.Environment {
	return c.Hosting
}

// Configurer is a config type which describes the hosting environment.
type Configurer interface {
	HostingEnvironment() hosting.Environment
}

// SetupFunc configures the [Builder] of an application from its config.
type SetupFunc[T Configurer] func(ctx context.Context, cfg T, b *Builder) error

// Run reads the config sources, unmarshals them into T, sets up, builds
// and runs the application until ctx is cancelled. Panics raised while
// doing so are returned as errors.
func Run[T Configurer](ctx context.Context, setup SetupFunc[T], srcs ...config.Source) (err error) {
	defer try.Recover(&err)

	m, err := config.Read(srcs...)
	if err != nil {
		return ConfigReadError{Cause: err}
	}

	var cfg T
	err = m.Unmarshal(&cfg)
	if err != nil {
		return ConfigUnmarshalError{Cause: err}
	}

	b := NewBuilder(cfg.HostingEnvironment())
	err = setup(ctx, cfg, b)
	if err != nil {
		return AppBuildError{Cause: err}
	}

	rt, err := b.Build(ctx)
	if err != nil {
		return AppBuildError{Cause: err}
	}

	err = rt.Run(ctx)
	if err != nil {
		return AppRunError{Cause: err}
	}
	return nil
}

// ConfigReadError is returned when a config source fails to apply.
type ConfigReadError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigReadError) Error() string {
	return fmt.Sprintf("failed to read config source(s): %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigReadError) Unwrap() error {
	return e.Cause
}

// ConfigUnmarshalError is returned when the config does not fit the config type.
type ConfigUnmarshalError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigUnmarshalError) Error() string {
	return fmt.Sprintf("failed to unmarshal read config source(s) into custom type: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigUnmarshalError) Unwrap() error {
	return e.Cause
}

// AppBuildError is returned when the application fails to set up or build.
type AppBuildError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e AppBuildError) Error() string {
	return fmt.Sprintf("failed to build app: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e AppBuildError) Unwrap() error {
	return e.Cause
}

// AppRunError is returned when the application fails while running.
type AppRunError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e AppRunError) Error() string {
	return fmt.Sprintf("failed to run app: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e AppRunError) Unwrap() error {
	return e.Cause
}
