package main

import (
	"fmt"
	"sync"
)

// Store is the object arc-hub exposes over every configured transport. Keys
// map to arbitrary values; Watch registers a callback that fires on every
// Set, demonstrating function arguments crossing the RPC boundary.
type Store struct {
	mu       sync.RWMutex
	data     map[string]any
	watchers []func(key string, value any)
}

func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return v, nil
}

// Set stores value under key and notifies all watchers.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	s.data[key] = value
	watchers := make([]func(string, any), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, w := range watchers {
		w(key, value)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return fmt.Errorf("no such key %q", key)
	}
	delete(s.data, key)
	return nil
}

// Keys lists all stored keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Watch registers fn to run on every Set. The callback arrives from remote
// callers as a callback reference; invoking it pushes a one-way message back
// to them.
func (s *Store) Watch(fn func(key string, value any)) error {
	if fn == nil {
		return fmt.Errorf("nil watch callback")
	}
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
	return nil
}
