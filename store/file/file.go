// Package file stores the key-value space as one JSON object on disk, the
// closest analogue of a browser's localStorage.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yitech/pricechart/store"
)

// Store keeps the whole map in memory and rewrites the file on every Set.
type Store struct {
	path string

	mu sync.RWMutex
	kv map[string]string
}

// Open loads path, creating an empty store if it does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, kv: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("file store: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.kv); err != nil {
		return nil, fmt.Errorf("file store: decode %s: %w", path, err)
	}
	return s, nil
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
	defer s.mu.Unlock()

	prev, had := s.kv[key]
	s.kv[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.kv[key] = prev
		} else {
			delete(s.kv, key)
		}
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

// flush writes the map via a temp file and rename. Callers hold mu.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.kv, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".store-*.json")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}
