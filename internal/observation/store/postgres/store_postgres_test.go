package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditgov/internal/observation/models"
	id "auditgov/pkg/domain"
	"auditgov/pkg/platform/sentinel"
)

var now = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

var columns = []string{
	"id", "tenant_id", "title", "risk_category",
	"condition", "criteria", "cause", "effect", "recommendation",
	"severity", "status", "version",
	"branch_id", "audit_area_id", "assignee_id", "due_date",
	"resolved_during_fieldwork", "fieldwork_reason",
	"latest_response_type", "latest_response_text", "latest_response_at",
	"repeat_of_id", "repeat_occurrence", "evidence_count",
	"created_by", "created_at", "updated_at", "status_changed_at",
}

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func sampleObservation() *models.Observation {
	return &models.Observation{
		ID:       id.NewObservationID(),
		TenantID: id.TenantID(uuid.New()),
		Title:    "Vault keys under single custody",
		Narrative: models.Narrative{
			Condition: "One custodian holds both keys",
			Criteria:  "Dual control policy",
		},
		Severity:        models.SeverityMedium,
		Status:          models.StatusDraft,
		Version:         1,
		BranchID:        id.BranchID(uuid.New()),
		AuditAreaID:     id.AuditAreaID(uuid.New()),
		CreatedBy:       id.ActorID(uuid.New()),
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}
}

func rowOf(obs *models.Observation) []driver.Value {
	return []driver.Value{
		obs.ID.String(), obs.TenantID.String(), obs.Title, obs.RiskCategory,
		obs.Narrative.Condition, obs.Narrative.Criteria, "", "", "",
		string(obs.Severity), string(obs.Status), obs.Version,
		obs.BranchID.String(), obs.AuditAreaID.String(), nil, nil,
		false, "",
		"", "", nil,
		nil, 0, obs.EvidenceCount,
		obs.CreatedBy.String(), obs.CreatedAt, obs.UpdatedAt, obs.StatusChangedAt,
	}
}

func TestCreate(t *testing.T) {
	t.Run("inserts every column", func(t *testing.T) {
		store, mock := newMock(t)
		args := make([]driver.Value, len(columns))
		for i := range args {
			args[i] = sqlmock.AnyArg()
		}
		mock.ExpectExec("INSERT INTO observations").
			WithArgs(args...).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Create(context.Background(), sampleObservation()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to already exists", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("INSERT INTO observations").
			WillReturnError(&pgconn.PgError{Code: uniqueViolation})

		err := store.Create(context.Background(), sampleObservation())
		assert.ErrorIs(t, err, sentinel.ErrAlreadyExists)
	})
}

func TestFindByID(t *testing.T) {
	t.Run("nullable columns come back as zero values", func(t *testing.T) {
		store, mock := newMock(t)
		obs := sampleObservation()
		mock.ExpectQuery("FROM observations WHERE tenant_id").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(rowOf(obs)...))

		got, err := store.FindByID(context.Background(), obs.TenantID, obs.ID)
		require.NoError(t, err)
		assert.Equal(t, obs.ID, got.ID)
		assert.Equal(t, obs.BranchID, got.BranchID)
		assert.True(t, got.AssigneeID.IsNil())
		assert.False(t, got.IsLinkedRepeat())
		assert.Nil(t, got.DueDate)
		assert.Nil(t, got.LatestResponseAt)
		assert.Equal(t, models.StatusDraft, got.Status)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery("FROM observations WHERE tenant_id").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := store.FindByID(context.Background(), id.TenantID(uuid.New()), id.NewObservationID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestUpdateIfVersion(t *testing.T) {
	advanced := func() *models.Observation {
		obs := sampleObservation()
		obs.Version = 2
		obs.Status = models.StatusSubmitted
		return obs
	}

	t.Run("matching version updates", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("UPDATE observations SET").WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.UpdateIfVersion(context.Background(), advanced(), 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("UPDATE observations SET").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := store.UpdateIfVersion(context.Background(), advanced(), 1)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec("UPDATE observations SET").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := store.UpdateIfVersion(context.Background(), advanced(), 1)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("version must advance by one", func(t *testing.T) {
		store, mock := newMock(t)
		err := store.UpdateIfVersion(context.Background(), sampleObservation(), 1)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet(), "nothing reaches the database")
	})
}

func TestIncrementEvidence(t *testing.T) {
	t.Run("returns the updated row", func(t *testing.T) {
		store, mock := newMock(t)
		obs := sampleObservation()
		obs.EvidenceCount = 4
		obs.Version = 2
		mock.ExpectQuery("SET evidence_count = evidence_count \\+ 1").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), now, models.MaxEvidencePerObservation).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(rowOf(obs)...))

		got, err := store.IncrementEvidence(context.Background(), obs.TenantID, obs.ID, models.MaxEvidencePerObservation, now)
		require.NoError(t, err)
		assert.Equal(t, 4, got.EvidenceCount)
	})

	t.Run("full observation reports the limit", func(t *testing.T) {
		store, mock := newMock(t)
		obs := sampleObservation()
		mock.ExpectQuery("SET evidence_count = evidence_count \\+ 1").
			WillReturnRows(sqlmock.NewRows(columns))
		mock.ExpectQuery("FROM observations WHERE tenant_id").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(rowOf(obs)...))

		_, err := store.IncrementEvidence(context.Background(), obs.TenantID, obs.ID, models.MaxEvidencePerObservation, now)
		assert.ErrorIs(t, err, sentinel.ErrLimitReached)
	})

	t.Run("unknown observation is not found", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery("SET evidence_count = evidence_count \\+ 1").
			WillReturnRows(sqlmock.NewRows(columns))
		mock.ExpectQuery("FROM observations WHERE tenant_id").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := store.IncrementEvidence(context.Background(), id.TenantID(uuid.New()), id.NewObservationID(), 20, now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestTimeline(t *testing.T) {
	store, mock := newMock(t)
	obs := sampleObservation()
	actor := id.ActorID(uuid.New())
	entry := models.NewTimelineEntry(obs, models.EventStatusChanged, actor, "DRAFT", "SUBMITTED", "ready", now)

	mock.ExpectExec("INSERT INTO timeline_entries").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.AppendTimeline(context.Background(), entry))

	mock.ExpectQuery("ORDER BY created_at ASC, seq ASC").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "observation_id", "kind", "old_value", "new_value", "comment", "actor_id", "created_at", "seq",
		}).AddRow(entry.ID.String(), obs.TenantID.String(), obs.ID.String(), "status_changed", "DRAFT", "SUBMITTED", "ready", actor.String(), now, 1))

	entries, err := store.ListTimeline(context.Background(), obs.TenantID, obs.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EventStatusChanged, entries[0].Kind)
	assert.Equal(t, actor, entries[0].ActorID)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountClosedInScope(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM observations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := store.CountClosedInScope(context.Background(), id.TenantID(uuid.New()), id.BranchID(uuid.New()), id.AuditAreaID(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
