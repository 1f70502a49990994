package state

import "sync"

// DirtySet is a concurrent set of record keys whose state has mutated since
// the last broadcast tick. Drain atomically empties it.
type DirtySet[K comparable] struct {
	mu sync.Mutex
	m  map[K]struct{}
}

// NewDirtySet returns an empty dirty set.
func NewDirtySet[K comparable]() *DirtySet[K] {
	return &DirtySet[K]{m: make(map[K]struct{})}
}

// Mark adds a key to the set.
func (s *DirtySet[K]) Mark(k K) {
	s.mu.Lock()
	s.m[k] = struct{}{}
	s.mu.Unlock()
}

// Drain removes and returns all keys currently in the set.
func (s *DirtySet[K]) Drain() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.m) == 0 {
		return nil
	}
	keys := make([]K, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	s.m = make(map[K]struct{})
	return keys
}

// Len returns the current number of dirty keys.
func (s *DirtySet[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
