// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package noop provides implementations which discard everything given to them.
package noop

import (
	"context"
	"log/slog"
)

// LogHandler is a [slog.Handler] which drops every record. It's the default
// handler for every component which accepts a log handler option.
type LogHandler struct{}

func (LogHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (LogHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (h LogHandler) WithAttrs(_ []slog.Attr) slog.Handler        { return h }
func (h LogHandler) WithGroup(_ string) slog.Handler             { return h }
