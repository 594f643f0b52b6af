package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	audit "auditgov/pkg/platform/audit"
	"auditgov/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.ComplianceEvent) error {
	return errors.New("outbox unavailable")
}

func (failingStore) ListByObservation(context.Context, id.ObservationID) ([]audit.ComplianceEvent, error) {
	return nil, nil
}

func TestPublisher_Emit(t *testing.T) {
	fixed := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	obsID := id.ObservationID(uuid.New())
	actorID := id.ActorID(uuid.New())

	t.Run("persists and stamps the event", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := New(store, WithClock(func() time.Time { return fixed }))

		err := pub.Emit(context.Background(), audit.ComplianceEvent{
			ActorID:       actorID,
			ObservationID: obsID,
			Action:        audit.EventObservationTransitioned,
		})
		require.NoError(t, err)

		events, err := store.ListByObservation(context.Background(), obsID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, fixed, events[0].Timestamp)
	})

	t.Run("store failure fails the caller", func(t *testing.T) {
		pub := New(failingStore{})
		err := pub.Emit(context.Background(), audit.ComplianceEvent{
			ActorID:       actorID,
			ObservationID: obsID,
			Action:        audit.EventRepeatConfirmed,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("missing action is rejected before persistence", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := New(store)
		err := pub.Emit(context.Background(), audit.ComplianceEvent{ActorID: actorID, ObservationID: obsID})
		require.Error(t, err)

		events, _ := store.ListAll(context.Background())
		assert.Empty(t, events)
	})
}
