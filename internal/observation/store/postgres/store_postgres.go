package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"auditgov/internal/observation/models"
	id "auditgov/pkg/domain"
	"auditgov/pkg/platform/sentinel"
	txcontext "auditgov/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists Observations in PostgreSQL. It joins the
// transaction carried in ctx when there is one.
// This store is pure I/O; lifecycle rules belong in the service.
type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.DBTX {
	return txcontext.Executor(ctx, s.db)
}

const observationColumns = `
	id, tenant_id, title, risk_category,
	condition, criteria, cause, effect, recommendation,
	severity, status, version,
	branch_id, audit_area_id, assignee_id, due_date,
	resolved_during_fieldwork, fieldwork_reason,
	latest_response_type, latest_response_text, latest_response_at,
	repeat_of_id, repeat_occurrence, evidence_count,
	created_by, created_at, updated_at, status_changed_at`

func (s *PostgresStore) Create(ctx context.Context, obs *models.Observation) error {
	query := `INSERT INTO observations (` + observationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err := s.execer(ctx).ExecContext(ctx, query, observationArgs(obs)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) (*models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE tenant_id = $1 AND id = $2`
	obs, err := scanObservation(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(obsID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find observation: %w", err)
	}
	return obs, nil
}

// UpdateIfVersion is a row-level compare-and-swap on version.
func (s *PostgresStore) UpdateIfVersion(ctx context.Context, obs *models.Observation, expectedVersion int) error {
	if obs.Version != expectedVersion+1 {
		return fmt.Errorf("update must advance version by one: expected %d, got %d", expectedVersion+1, obs.Version)
	}
	query := `
		UPDATE observations SET
			title = $3, risk_category = $4,
			condition = $5, criteria = $6, cause = $7, effect = $8, recommendation = $9,
			severity = $10, status = $11, version = $12,
			branch_id = $13, audit_area_id = $14, assignee_id = $15, due_date = $16,
			resolved_during_fieldwork = $17, fieldwork_reason = $18,
			latest_response_type = $19, latest_response_text = $20, latest_response_at = $21,
			repeat_of_id = $22, repeat_occurrence = $23, evidence_count = $24,
			updated_at = $25, status_changed_at = $26
		WHERE id = $1 AND tenant_id = $2 AND version = $27
	`
	// created_by and created_at are immutable and never rewritten.
	all := observationArgs(obs)
	args := append(all[:24:24], all[26], all[27], expectedVersion)
	result, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update observation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update observation rows affected: %w", err)
	}
	if rows == 0 {
		return s.missOrConflict(ctx, obs.TenantID, obs.ID)
	}
	return nil
}

func (s *PostgresStore) missOrConflict(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) error {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM observations WHERE tenant_id = $1 AND id = $2)`,
		uuid.UUID(tenantID), uuid.UUID(obsID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check observation existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) IncrementEvidence(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID, limit int, now time.Time) (*models.Observation, error) {
	query := `
		UPDATE observations
		SET evidence_count = evidence_count + 1, version = version + 1, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND evidence_count < $4
		RETURNING ` + observationColumns
	obs, err := scanObservation(s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(tenantID), uuid.UUID(obsID), now, limit))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, findErr := s.FindByID(ctx, tenantID, obsID); findErr != nil {
				return nil, findErr
			}
			return nil, sentinel.ErrLimitReached
		}
		return nil, fmt.Errorf("increment evidence: %w", err)
	}
	return obs, nil
}

func (s *PostgresStore) AppendTimeline(ctx context.Context, entries ...models.TimelineEntry) error {
	query := `
		INSERT INTO timeline_entries (id, tenant_id, observation_id, kind, old_value, new_value, comment, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, e := range entries {
		_, err := s.execer(ctx).ExecContext(ctx, query,
			uuid.UUID(e.ID),
			uuid.UUID(e.TenantID),
			uuid.UUID(e.ObservationID),
			string(e.Kind),
			e.OldValue,
			e.NewValue,
			e.Comment,
			uuid.UUID(e.ActorID),
			e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert timeline entry: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListTimeline(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) ([]models.TimelineEntry, error) {
	query := `
		SELECT id, tenant_id, observation_id, kind, old_value, new_value, comment, actor_id, created_at, seq
		FROM timeline_entries
		WHERE tenant_id = $1 AND observation_id = $2
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(obsID))
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var out []models.TimelineEntry
	for rows.Next() {
		var (
			e                          models.TimelineEntry
			entryID, tenant, obs, actr uuid.UUID
			kind                       string
		)
		if err := rows.Scan(&entryID, &tenant, &obs, &kind, &e.OldValue, &e.NewValue, &e.Comment, &actr, &e.CreatedAt, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.ID = id.TimelineEntryID(entryID)
		e.TenantID = id.TenantID(tenant)
		e.ObservationID = id.ObservationID(obs)
		e.ActorID = id.ActorID(actr)
		e.Kind = models.EventKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateResponse(ctx context.Context, resp *models.AuditeeResponse) error {
	query := `
		INSERT INTO auditee_responses (id, tenant_id, observation_id, type, text, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(resp.ID),
		uuid.UUID(resp.TenantID),
		uuid.UUID(resp.ObservationID),
		string(resp.Type),
		resp.Text,
		uuid.UUID(resp.ActorID),
		resp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert auditee response: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) ([]models.AuditeeResponse, error) {
	query := `
		SELECT id, tenant_id, observation_id, type, text, actor_id, created_at
		FROM auditee_responses
		WHERE tenant_id = $1 AND observation_id = $2
		ORDER BY created_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(tenantID), uuid.UUID(obsID))
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []models.AuditeeResponse
	for rows.Next() {
		var (
			r                           models.AuditeeResponse
			respID, tenant, obs, author uuid.UUID
			respType                    string
		)
		if err := rows.Scan(&respID, &tenant, &obs, &respType, &r.Text, &author, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		r.ID = id.ResponseID(respID)
		r.TenantID = id.TenantID(tenant)
		r.ObservationID = id.ObservationID(obs)
		r.ActorID = id.ActorID(author)
		r.Type = models.ResponseType(respType)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListClosedInScope(ctx context.Context, tenantID id.TenantID, branchID id.BranchID, areaID id.AuditAreaID) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM observations
		WHERE tenant_id = $1 AND branch_id = $2 AND audit_area_id = $3 AND status = 'CLOSED'
		ORDER BY created_at ASC`
	return s.queryObservations(ctx, query, uuid.UUID(tenantID), uuid.UUID(branchID), uuid.UUID(areaID))
}

func (s *PostgresStore) CountClosedInScope(ctx context.Context, tenantID id.TenantID, branchID id.BranchID, areaID id.AuditAreaID) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM observations
		WHERE tenant_id = $1 AND branch_id = $2 AND audit_area_id = $3 AND status = 'CLOSED'`,
		uuid.UUID(tenantID), uuid.UUID(branchID), uuid.UUID(areaID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count closed observations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListOpenWithAssignee(ctx context.Context) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM observations
		WHERE status IN ('ISSUED', 'RESPONSE', 'COMPLIANCE') AND assignee_id IS NOT NULL
		ORDER BY created_at ASC`
	return s.queryObservations(ctx, query)
}

func (s *PostgresStore) queryObservations(ctx context.Context, query string, args ...any) ([]*models.Observation, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []*models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}
