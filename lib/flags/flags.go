// Package flags holds the small per-installation booleans a browser would
// otherwise keep in local storage.
package flags

import (
	"context"
	"sync"
)

const (
	// Subscribed caches the last known subscription state. The simulator
	// uses it as its only source of truth.
	Subscribed = "push_subscribed"
	// DialogShown is set once the notification dialog was shown and never cleared.
	DialogShown = "notification_dialog_shown"
)

type Store interface {
	// Get returns ok=false when the flag was never written.
	Get(ctx context.Context, installation, key string) (value bool, ok bool, err error)
	Set(ctx context.Context, installation, key string, value bool) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: map[string]map[string]bool{}}
}

func (s *MemoryStore) Get(_ context.Context, installation, key string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.flags[installation][key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, installation, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inner, ok := s.flags[installation]
	if !ok {
		inner = map[string]bool{}
		s.flags[installation] = inner
	}
	inner[key] = value
	return nil
}
