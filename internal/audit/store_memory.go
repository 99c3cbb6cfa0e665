package audit

import (
	"context"
	"sync"

	id "attest/pkg/domain"
)

// InMemoryStore keeps the audit trail in memory for tests and single-node
// deployments. It records global append order alongside a per-principal index.
type InMemoryStore struct {
	mu          sync.RWMutex
	events      []Event
	byPrincipal map[id.Principal][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byPrincipal: make(map[id.Principal][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.byPrincipal[event.Principal] = append(s.byPrincipal[event.Principal], len(s.events)-1)
	return nil
}

func (s *InMemoryStore) ListByPrincipal(_ context.Context, principal id.Principal) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indices := s.byPrincipal[principal]
	events := make([]Event, 0, len(indices))
	for _, i := range indices {
		events = append(events, s.events[i])
	}
	return events, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...), nil
}
