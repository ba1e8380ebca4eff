// Package memory is an in-process Store, used in tests and when nothing
// needs to survive a restart.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/yitech/pricechart/store"
)

type Store struct {
	mu sync.RWMutex
	kv map[string]string
}

func New() *Store {
	return &Store{kv: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.kv[key] = value
	s.mu.Unlock()
	return nil
}

// Dump returns a copy of every entry.
func (s *Store) Dump() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.kv)
}

func (s *Store) Close() error { return nil }
