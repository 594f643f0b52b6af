// Package memory is an in-process notification queue for development and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"auditgov/internal/notification/models"
	id "auditgov/pkg/domain"
	"auditgov/pkg/platform/sentinel"
)

type dedupeKey struct {
	tenant id.TenantID
	typ    models.Type
	obs    id.ObservationID
	day    string
}

type InMemoryStore struct {
	mu         sync.Mutex
	intents    map[id.IntentID]*models.Intent
	dedupe     map[dedupeKey]id.IntentID
	deliveries map[id.DeliveryID]*models.DeliveryLog
	seq        map[id.IntentID]int64
	next       int64
}

func New() *InMemoryStore {
	return &InMemoryStore{
		intents:    make(map[id.IntentID]*models.Intent),
		dedupe:     make(map[dedupeKey]id.IntentID),
		deliveries: make(map[id.DeliveryID]*models.DeliveryLog),
		seq:        make(map[id.IntentID]int64),
	}
}

func (s *InMemoryStore) Create(_ context.Context, intent *models.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[intent.ID]; exists {
		return sentinel.ErrAlreadyExists
	}
	if intent.DedupeDay != "" {
		key := dedupeKey{intent.TenantID, intent.Type, intent.Payload.ObservationID, intent.DedupeDay}
		if _, taken := s.dedupe[key]; taken {
			return sentinel.ErrAlreadyExists
		}
		s.dedupe[key] = intent.ID
	}
	s.next++
	s.seq[intent.ID] = s.next
	s.intents[intent.ID] = clone(intent)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, intentID id.IntentID) (*models.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[intentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(intent), nil
}

func (s *InMemoryStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.Intent
	for _, intent := range s.intents {
		if intent.Status == models.StatusPending && !intent.SendAfter.After(now) {
			due = append(due, intent)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return s.seq[due[i].ID] < s.seq[due[j].ID]
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*models.Intent, 0, len(due))
	for _, intent := range due {
		claimedAt := now
		intent.Status = models.StatusProcessing
		intent.ClaimedAt = &claimedAt
		intent.UpdatedAt = now
		out = append(out, clone(intent))
	}
	return out, nil
}

func (s *InMemoryStore) MarkSent(_ context.Context, delivery *models.DeliveryLog, intentIDs []id.IntentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, intentID := range intentIDs {
		intent, ok := s.intents[intentID]
		if !ok || intent.Status != models.StatusProcessing {
			return sentinel.ErrInvalidState
		}
	}
	d := *delivery
	s.deliveries[delivery.ID] = &d
	for _, intentID := range intentIDs {
		intent := s.intents[intentID]
		intent.Status = models.StatusSent
		intent.DeliveryID = delivery.ID
		intent.ClaimedAt = nil
		intent.LastError = ""
		intent.UpdatedAt = delivery.DeliveredAt
	}
	return nil
}

func (s *InMemoryStore) MarkRetry(_ context.Context, intentID id.IntentID, retryCount int, sendAfter time.Time, lastErr string, now time.Time) error {
	return s.settle(intentID, func(intent *models.Intent) {
		intent.Status = models.StatusPending
		intent.RetryCount = retryCount
		intent.SendAfter = sendAfter
		intent.LastError = lastErr
		intent.UpdatedAt = now
	})
}

func (s *InMemoryStore) MarkFailed(_ context.Context, intentID id.IntentID, retryCount int, lastErr string, now time.Time) error {
	return s.settle(intentID, func(intent *models.Intent) {
		intent.Status = models.StatusFailed
		intent.RetryCount = retryCount
		intent.LastError = lastErr
		intent.UpdatedAt = now
	})
}

func (s *InMemoryStore) settle(intentID id.IntentID, fn func(*models.Intent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[intentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if intent.Status != models.StatusProcessing {
		return sentinel.ErrInvalidState
	}
	fn(intent)
	intent.ClaimedAt = nil
	return nil
}

func (s *InMemoryStore) ReclaimStale(_ context.Context, claimedBefore, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, intent := range s.intents {
		if intent.Status == models.StatusProcessing && intent.ClaimedAt != nil && intent.ClaimedAt.Before(claimedBefore) {
			intent.Status = models.StatusPending
			intent.ClaimedAt = nil
			intent.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// List returns every intent in creation order.
func (s *InMemoryStore) List() []*models.Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Intent, 0, len(s.intents))
	for _, intent := range s.intents {
		out = append(out, clone(intent))
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out
}

// Delivery returns a recorded delivery log.
func (s *InMemoryStore) Delivery(deliveryID id.DeliveryID) (*models.DeliveryLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[deliveryID]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

func clone(intent *models.Intent) *models.Intent {
	cp := *intent
	if intent.ClaimedAt != nil {
		t := *intent.ClaimedAt
		cp.ClaimedAt = &t
	}
	if intent.Payload.DueDate != nil {
		t := *intent.Payload.DueDate
		cp.Payload.DueDate = &t
	}
	return &cp
}
