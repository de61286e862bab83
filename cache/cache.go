// Package cache contains the in-memory cache facility handed to agent
// runtimes (namespaced by character hash so distinct characters never share
// cached values) and a deterministic local embedder that backs memory
// embedding without a remote service.
package cache

import (
	"context"
	"sync"
)

// InMemoryStore is a process-local, namespaced key/value cache. It is safe
// for concurrent access.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]any // namespace -> key -> value
}

// NewInMemoryStore constructs an empty in-memory cache store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]map[string]any)}
}

// Get returns the cached value and an existence flag.
func (s *InMemoryStore) Get(_ context.Context, namespace, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.values[namespace]
	if !ok {
		return nil, false, nil
	}
	v, ok := ns[key]
	return v, ok, nil
}

// Set stores a value under namespace/key.
func (s *InMemoryStore) Set(_ context.Context, namespace, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.values[namespace]
	if !ok {
		ns = make(map[string]any)
		s.values[namespace] = ns
	}
	ns[key] = value
	return nil
}

// Delete removes a cached value.
func (s *InMemoryStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.values[namespace]; ok {
		delete(ns, key)
	}
	return nil
}
