// Package memory is the in-process audit sink, used by tests and embedded
// hosts that do not need durability. It intentionally favors clarity over
// performance.
package memory

import (
	"context"
	"sync"

	"chronicle/internal/recorder"
)

type Store struct {
	mu     sync.RWMutex
	events []recorder.AuditEvent
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event recorder.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]recorder.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit > n {
		limit = n
	}
	out := make([]recorder.AuditEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListByTarget returns events for one entity in write order.
func (s *Store) ListByTarget(_ context.Context, targetType, targetID string) ([]recorder.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []recorder.AuditEvent
	for _, e := range s.events {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Clear drops all events; test isolation helper.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
