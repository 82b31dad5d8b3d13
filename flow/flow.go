// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package flow provides ambient, request scoped state which travels
// with a [context.Context] through every goroutine handling a logical request.
//
// State comes in two flavours:
//
//   - properties, which are string keyed and usually propagated across
//     service boundaries (e.g. baggage), and
//   - globals, which are singletons keyed by their Go type (e.g. the
//     classification of the current request).
//
// A [Store] created with [New] is a root store. Roots may be shared, for example
// through an http.Server BaseContext, and are never mutated by request processing.
// [Begin] gives every logical request its own store, forked from the root found
// in the context, and opens a [Scope] on it. Ending the scope restores every key
// touched while it was open.
package flow

import (
	"context"
	"maps"
	"reflect"
	"sync"
)

type contextKey struct{}

type slot struct {
	property string
	global   reflect.Type
}

type priorValue struct {
	value   any
	present bool
}

// Store holds ambient properties and globals. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	owned      bool
	properties map[string]any
	globals    map[reflect.Type]any
	scopes     []*Scope
}

// New returns an empty root Store.
func New() *Store {
	return &Store{
		properties: make(map[string]any),
		globals:    make(map[reflect.Type]any),
	}
}

func (s *Store) fork() *Store {
	child := New()
	child.owned = true
	if s == nil {
		return child
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	child.properties = maps.Clone(s.properties)
	child.globals = maps.Clone(s.globals)
	return child
}

// WithStore returns a copy of ctx which carries s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the Store carried by ctx, if any.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(contextKey{}).(*Store)
	return s, ok && s != nil
}

// Begin opens a new scope for the logical request ctx belongs to.
//
// If ctx already carries a store owned by a logical request, the scope
// nests inside it and ctx is returned unchanged. Otherwise a new request
// owned store is forked from the root store in ctx (or created empty)
// and the returned context carries it.
func Begin(ctx context.Context) (context.Context, *Scope) {
	s, ok := FromContext(ctx)
	if !ok || !s.owned {
		s = s.fork()
		ctx = WithStore(ctx, s)
	}
	return ctx, s.begin()
}

// SetProperty sets the property key to value.
func (s *Store) SetProperty(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(slot{property: key})
	s.properties[key] = value
}

// Property returns the value of the property key.
func (s *Store) Property(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.properties[key]
	return v, ok
}

// RemoveProperty removes the property key.
func (s *Store) RemoveProperty(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(slot{property: key})
	delete(s.properties, key)
}

// Properties returns a snapshot of every property.
func (s *Store) Properties() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.properties)
}

// SetGlobal sets the global singleton of type T.
func SetGlobal[T any](s *Store, v T) {
	t := reflect.TypeFor[T]()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(slot{global: t})
	s.globals[t] = v
}

// Global returns the global singleton of type T.
func Global[T any](s *Store) (T, bool) {
	var zero T
	t := reflect.TypeFor[T]()

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.globals[t]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// RemoveGlobal removes the global singleton of type T.
func RemoveGlobal[T any](s *Store) {
	t := reflect.TypeFor[T]()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(slot{global: t})
	delete(s.globals, t)
}

// record must be called with s.mu held for writing.
func (s *Store) record(k slot) {
	if len(s.scopes) == 0 {
		return
	}

	var cur priorValue
	if k.global != nil {
		cur.value, cur.present = s.globals[k.global]
	} else {
		cur.value, cur.present = s.properties[k.property]
	}

	for _, sc := range s.scopes {
		if _, seen := sc.prior[k]; seen {
			continue
		}
		sc.prior[k] = cur
	}
}

// restore must be called with s.mu held for writing.
func (s *Store) restore(sc *Scope) {
	for k, p := range sc.prior {
		switch {
		case k.global != nil && p.present:
			s.globals[k.global] = p.value
		case k.global != nil:
			delete(s.globals, k.global)
		case p.present:
			s.properties[k.property] = p.value
		default:
			delete(s.properties, k.property)
		}
	}
	sc.prior = nil
	sc.ended = true
}
