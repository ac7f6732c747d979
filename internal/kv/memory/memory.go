package memory

import (
	"context"
	"sync"

	"invoicely/backend/internal/kv"
)

// Store is an in-memory kv.Store used for tests and dev mode.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	lists  map[string][]string
}

func New() *Store {
	return &Store{
		values: make(map[string]string),
		lists:  make(map[string][]string),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return value, nil
}

func (s *Store) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *Store) GetList(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[key]
	if !ok {
		return nil, nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (s *Store) SetList(_ context.Context, key string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]string, len(values))
	copy(list, values)
	s.lists[key] = list
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	delete(s.lists, key)
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}
