// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package flow

// Scope captures the value of every key touched on its [Store] while it is
// open and restores those values when ended.
type Scope struct {
	store *Store
	depth int
	prior map[slot]priorValue
	ended bool
}

func (s *Store) begin() *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := &Scope{
		store: s,
		depth: len(s.scopes),
		prior: make(map[slot]priorValue),
	}
	s.scopes = append(s.scopes, sc)
	return sc
}

// End restores every key touched since the scope began to its prior value,
// removing keys which were previously absent. Scopes nested inside this one
// which are still open are ended first.
//
// End is idempotent.
func (sc *Scope) End() {
	s := sc.store

	s.mu.Lock()
	defer s.mu.Unlock()

	if sc.ended {
		return
	}
	for i := len(s.scopes) - 1; i >= sc.depth; i-- {
		s.restore(s.scopes[i])
		s.scopes[i] = nil
	}
	s.scopes = s.scopes[:sc.depth]
}

// Store returns the Store this scope belongs to.
func (sc *Scope) Store() *Store {
	return sc.store
}
