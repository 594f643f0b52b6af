package memory

import (
	"context"
	"sync"

	id "auditgov/pkg/domain"
	audit "auditgov/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.ObservationID][]audit.ComplianceEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.ObservationID][]audit.ComplianceEvent)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.ObservationID][]audit.ComplianceEvent)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.ComplianceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ObservationID] = append(s.events[event.ObservationID], event)
	return nil
}

func (s *InMemoryStore) ListByObservation(_ context.Context, observationID id.ObservationID) ([]audit.ComplianceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.ComplianceEvent{}, s.events[observationID]...), nil
}

// ListAll returns every recorded event, in no particular order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.ComplianceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.ComplianceEvent
	for _, events := range s.events {
		all = append(all, events...)
	}
	return all, nil
}
