// Package memory provides an in-memory audit store for tests and local
// development.
package memory

import (
	"context"
	"sync"

	"credlock/pkg/platform/audit/models"
)

type Store struct {
	mu     sync.RWMutex
	events []models.Event
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

// List returns events newest first, filtered by kind when kind is non-empty.
func (s *Store) List(_ context.Context, kind models.Kind, limit int) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0; i-- {
		if kind != "" && s.events[i].Kind != kind {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.events)), nil
}
