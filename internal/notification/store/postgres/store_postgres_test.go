package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditgov/internal/notification/models"
	id "auditgov/pkg/domain"
	"auditgov/pkg/platform/sentinel"
)

var now = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func sampleIntent() *models.Intent {
	return &models.Intent{
		ID:          id.NewIntentID(),
		TenantID:    id.TenantID(uuid.New()),
		RecipientID: id.ActorID(uuid.New()),
		Type:        models.TypeAssignment,
		Payload:     models.Payload{ObservationID: id.NewObservationID(), Title: "Vault keys under single custody"},
		DedupeDay:   "2026-10-05",
		Status:      models.StatusPending,
		SendAfter:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

var columns = []string{
	"id", "tenant_id", "recipient_id", "type", "payload", "dedupe_day", "status",
	"retry_count", "last_error", "send_after", "batch_key", "claimed_at", "delivery_id",
	"created_at", "updated_at",
}

func rowOf(t *testing.T, intent *models.Intent, claimedAt any) []driver.Value {
	t.Helper()
	payload, err := json.Marshal(intent.Payload)
	require.NoError(t, err)
	return []driver.Value{
		intent.ID.String(), intent.TenantID.String(), intent.RecipientID.String(),
		string(intent.Type), payload, now, string(intent.Status),
		intent.RetryCount, intent.LastError, intent.SendAfter, nil, claimedAt, nil,
		intent.CreatedAt, intent.UpdatedAt,
	}
}

func TestCreate(t *testing.T) {
	t.Run("inserts a new intent", func(t *testing.T) {
		store, mock := newMock(t)
		intent := sampleIntent()
		mock.ExpectExec("INSERT INTO notification_intents").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Create(context.Background(), intent))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate key maps to already exists", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("INSERT INTO notification_intents").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Create(context.Background(), sampleIntent())
		assert.ErrorIs(t, err, sentinel.ErrAlreadyExists)
	})

	t.Run("driver error is wrapped", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("INSERT INTO notification_intents").
			WillReturnError(errors.New("connection refused"))

		err := store.Create(context.Background(), sampleIntent())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert notification intent")
	})
}

func TestFindByID(t *testing.T) {
	t.Run("scans the row", func(t *testing.T) {
		store, mock := newMock(t)
		intent := sampleIntent()
		mock.ExpectQuery("SELECT .* FROM notification_intents WHERE id").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(rowOf(t, intent, nil)...))

		got, err := store.FindByID(context.Background(), intent.ID)
		require.NoError(t, err)
		assert.Equal(t, intent.ID, got.ID)
		assert.Equal(t, intent.RecipientID, got.RecipientID)
		assert.Equal(t, "2026-10-05", got.DedupeDay)
		assert.Equal(t, intent.Payload.ObservationID, got.Payload.ObservationID)
		assert.Nil(t, got.ClaimedAt)
		assert.Empty(t, got.BatchKey)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery("SELECT .* FROM notification_intents WHERE id").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := store.FindByID(context.Background(), id.NewIntentID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestClaimDueOrdersByCreation(t *testing.T) {
	store, mock := newMock(t)
	first, second := sampleIntent(), sampleIntent()
	first.CreatedAt = now.Add(-time.Hour)
	first.Status, second.Status = models.StatusProcessing, models.StatusProcessing

	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(now, 10).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(rowOf(t, second, now)...).
			AddRow(rowOf(t, first, now)...))

	claimed, err := store.ClaimDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first.ID, claimed[0].ID)
	require.NotNil(t, claimed[0].ClaimedAt)
	assert.Equal(t, models.StatusProcessing, claimed[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSent(t *testing.T) {
	delivery := &models.DeliveryLog{
		ID:          id.NewDeliveryID(),
		TenantID:    id.TenantID(uuid.New()),
		RecipientID: id.ActorID(uuid.New()),
		Type:        models.TypeBulkDigest,
		Subject:     "3 updates",
		ContentHash: "abc",
		IntentCount: 2,
		DeliveredAt: now,
	}
	ids := []id.IntentID{id.NewIntentID(), id.NewIntentID()}

	t.Run("writes the log and settles every intent in one transaction", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO delivery_logs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE notification_intents").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		require.NoError(t, store.MarkSent(context.Background(), delivery, ids))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("an intent no longer processing rolls back", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO delivery_logs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE notification_intents").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		err := store.MarkSent(context.Background(), delivery, ids)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSettle(t *testing.T) {
	t.Run("retry returns the intent to pending", func(t *testing.T) {
		store, mock := newMock(t)
		intentID := id.NewIntentID()
		mock.ExpectExec("SET status = 'pending', retry_count").
			WithArgs(sqlmock.AnyArg(), 1, now.Add(2*time.Minute), "timeout", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.MarkRetry(context.Background(), intentID, 1, now.Add(2*time.Minute), "timeout", now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed on an unclaimed intent is invalid state", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("SET status = 'failed'").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.MarkFailed(context.Background(), id.NewIntentID(), 3, "boom", now)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})
}

func TestReclaimStale(t *testing.T) {
	store, mock := newMock(t)
	cutoff := now.Add(-10 * time.Minute)
	mock.ExpectExec("WHERE status = 'processing' AND claimed_at <").
		WithArgs(cutoff, now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.ReclaimStale(context.Background(), cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
