// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package maskslog provides an slog.Handler which hides sensitive values,
// such as caller identities, before they reach the wrapped handler.
package maskslog

import (
	"context"
	"log/slog"
	"strings"
)

type options struct {
	attrs    map[string]func(slog.Attr) slog.Attr
	messages []func(string) string
}

// Option helps configure the Handler.
type Option func(*options)

// Message registers a function for masking slog.Record messages.
func Message(f func(string) string) Option {
	return func(o *options) {
		o.messages = append(o.messages, f)
	}
}

// Attr registers a function for masking a slog.Attr given its key.
// A key may name an attr nested in groups by joining the group names
// and the key with dots, e.g. "request.client_identity".
func Attr(key string, f func(slog.Attr) slog.Attr) Option {
	return func(o *options) {
		o.attrs[key] = f
	}
}

// Keys masks every attr named by keys with [AnonymousStringAttr].
func Keys(keys ...string) Option {
	return func(o *options) {
		for _, k := range keys {
			o.attrs[k] = AnonymousStringAttr
		}
	}
}

// AnonymousStringAttr is a helper function for converting any slog.Attr
// into the anonymized string, "****". It completely ignores the given
// slog.Attr value type and always return a string value.
func AnonymousStringAttr(a slog.Attr) slog.Attr {
	return slog.String(a.Key, "****")
}

// Handler is an slog.Handler.
type Handler struct {
	slog   slog.Handler
	opts   *options
	groups []string
}

// NewHandler returns a new Handler.
func NewHandler(h slog.Handler, opts ...Option) *Handler {
	o := &options{
		attrs: make(map[string]func(slog.Attr) slog.Attr),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Handler{slog: h, opts: o}
}

// Enabled implements the slog.Handler interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

// Handle implements the slog.Handler interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	msg := record.Message
	for _, f := range h.opts.messages {
		msg = f(msg)
	}
	if len(h.opts.attrs) == 0 {
		record.Message = msg
		return h.slog.Handle(ctx, record)
	}

	nr := slog.NewRecord(record.Time, record.Level, msg, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.mask(h.groups, a))
		return true
	})
	return h.slog.Handle(ctx, nr)
}

func (h *Handler) mask(groups []string, a slog.Attr) slog.Attr {
	path := strings.Join(append(groups, a.Key), ".")
	if f, ok := h.opts.attrs[path]; ok {
		return f(a)
	}

	v := a.Value.Resolve()
	if v.Kind() != slog.KindGroup {
		return a
	}

	inner := groups
	if a.Key != "" {
		inner = append(inner[:len(inner):len(inner)], a.Key)
	}
	as := v.Group()
	masked := make([]slog.Attr, len(as))
	for i, ga := range as {
		masked[i] = h.mask(inner, ga)
	}
	return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
}

// WithAttrs implements the slog.Handler interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.mask(h.groups, a)
	}
	return &Handler{
		slog:   h.slog.WithAttrs(masked),
		opts:   h.opts,
		groups: h.groups,
	}
}

// WithGroup implements the slog.Handler interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{
		slog:   h.slog.WithGroup(name),
		opts:   h.opts,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}
