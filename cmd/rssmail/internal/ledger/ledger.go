// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package ledger persists the identities of feed items that were already
// dispatched, so later runs don't send them again.
//
// Two backends are provided: [File], a plain text file with one identity per
// line, and [SQLite]. Both only ever grow.
package ledger

import (
	"sync"
)

// set is the in-memory view of a ledger, shared by both backends.
type set struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	order []string
}

func (s *set) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
	s.order = nil
}

// add reports whether id was not present before.
func (s *set) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *set) has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

func (s *set) entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
