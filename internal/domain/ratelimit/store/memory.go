package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryStore struct {
	items map[string]Window
	mutex sync.Mutex
	now   func() time.Time
}

// NewMemory builds a process-local window store.
func NewMemory(cfg Config) Store {
	return &memoryStore{
		items: make(map[string]Window),
		now:   clock(cfg),
	}
}

func (s *memoryStore) Increment(_ context.Context, key string, window time.Duration) (Window, error) {
	if key == "" {
		return Window{}, fmt.Errorf("rate limit key required")
	}
	now := s.now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	w, ok := s.items[key]
	if !ok || !now.Before(w.ExpiresAt) {
		w = Window{Key: key, Start: now, ExpiresAt: now.Add(window)}
	}
	w.Count++
	s.items[key] = w
	return w, nil
}

func (s *memoryStore) Get(_ context.Context, key string) (Window, bool, error) {
	now := s.now()
	s.mutex.Lock()
	w, ok := s.items[key]
	s.mutex.Unlock()
	if !ok || !now.Before(w.ExpiresAt) {
		return Window{}, false, nil
	}
	return w, true, nil
}

func (s *memoryStore) Reset(_ context.Context, key string) error {
	s.mutex.Lock()
	delete(s.items, key)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := s.now()
	s.mutex.Lock()
	for key, w := range s.items {
		if !now.Before(w.ExpiresAt) {
			delete(s.items, key)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := s.now()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	active := 0
	for _, w := range s.items {
		if now.Before(w.ExpiresAt) {
			active++
		}
	}
	return map[string]any{
		"type":   "memory",
		"total":  len(s.items),
		"active": active,
	}, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
