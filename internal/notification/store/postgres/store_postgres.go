package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"auditgov/internal/notification/models"
	id "auditgov/pkg/domain"
	"auditgov/pkg/platform/sentinel"
	txcontext "auditgov/pkg/platform/tx"
)

// PostgresStore is the durable intent queue. Claims use FOR UPDATE SKIP
// LOCKED so overlapping workers partition the due set.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, timeout: txcontext.DefaultTimeout}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.DBTX {
	return txcontext.Executor(ctx, s.db)
}

const intentColumns = `
	id, tenant_id, recipient_id, type, payload, dedupe_day, status,
	retry_count, last_error, send_after, batch_key, claimed_at, delivery_id,
	created_at, updated_at`

const claimedColumns = `
	n.id, n.tenant_id, n.recipient_id, n.type, n.payload, n.dedupe_day, n.status,
	n.retry_count, n.last_error, n.send_after, n.batch_key, n.claimed_at, n.delivery_id,
	n.created_at, n.updated_at`

func (s *PostgresStore) Create(ctx context.Context, intent *models.Intent) error {
	payload, err := json.Marshal(intent.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var obsID any
	if !intent.Payload.ObservationID.IsNil() {
		obsID = uuid.UUID(intent.Payload.ObservationID)
	}
	query := `
		INSERT INTO notification_intents (
			id, tenant_id, recipient_id, type, payload, observation_id, dedupe_day,
			status, retry_count, last_error, send_after, batch_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::date, $8, $9, $10, $11, NULLIF($12, ''), $13, $13)
		ON CONFLICT DO NOTHING
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(intent.ID),
		uuid.UUID(intent.TenantID),
		uuid.UUID(intent.RecipientID),
		string(intent.Type),
		payload,
		obsID,
		intent.DedupeDay,
		string(intent.Status),
		intent.RetryCount,
		intent.LastError,
		intent.SendAfter,
		intent.BatchKey,
		intent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification intent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert notification intent rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, intentID id.IntentID) (*models.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM notification_intents WHERE id = $1`
	intent, err := scanIntent(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(intentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find notification intent: %w", err)
	}
	return intent, nil
}

func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Intent, error) {
	query := `
		WITH due AS (
			SELECT id FROM notification_intents
			WHERE status = 'pending' AND send_after <= $1
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_intents n
		SET status = 'processing', claimed_at = $1, updated_at = $1
		FROM due
		WHERE n.id = due.id
		RETURNING ` + claimedColumns
	rows, err := s.execer(ctx).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due intents: %w", err)
	}
	defer rows.Close()

	var out []*models.Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed intent: %w", err)
		}
		out = append(out, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed intents: %w", err)
	}
	// RETURNING carries no order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, delivery *models.DeliveryLog, intentIDs []id.IntentID) error {
	return txcontext.Run(ctx, s.db, s.timeout, func(ctx context.Context) error {
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO delivery_logs (id, tenant_id, recipient_id, type, subject, content_hash, intent_count, delivered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.UUID(delivery.ID),
			uuid.UUID(delivery.TenantID),
			uuid.UUID(delivery.RecipientID),
			string(delivery.Type),
			delivery.Subject,
			delivery.ContentHash,
			delivery.IntentCount,
			delivery.DeliveredAt,
		)
		if err != nil {
			return fmt.Errorf("insert delivery log: %w", err)
		}

		result, err := s.execer(ctx).ExecContext(ctx, `
			UPDATE notification_intents
			SET status = 'sent', delivery_id = $1, claimed_at = NULL, last_error = '', updated_at = $2
			WHERE id = ANY($3::uuid[]) AND status = 'processing'`,
			uuid.UUID(delivery.ID), delivery.DeliveredAt, pq.Array(intentIDStrings(intentIDs)),
		)
		if err != nil {
			return fmt.Errorf("mark intents sent: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark intents sent rows affected: %w", err)
		}
		if int(rows) != len(intentIDs) {
			return sentinel.ErrInvalidState
		}
		return nil
	})
}

func (s *PostgresStore) MarkRetry(ctx context.Context, intentID id.IntentID, retryCount int, sendAfter time.Time, lastErr string, now time.Time) error {
	query := `
		UPDATE notification_intents
		SET status = 'pending', retry_count = $2, send_after = $3, last_error = $4, claimed_at = NULL, updated_at = $5
		WHERE id = $1 AND status = 'processing'
	`
	return s.settle(ctx, query, uuid.UUID(intentID), retryCount, sendAfter, lastErr, now)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, intentID id.IntentID, retryCount int, lastErr string, now time.Time) error {
	query := `
		UPDATE notification_intents
		SET status = 'failed', retry_count = $2, last_error = $3, claimed_at = NULL, updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`
	return s.settle(ctx, query, uuid.UUID(intentID), retryCount, lastErr, now)
}

func (s *PostgresStore) settle(ctx context.Context, query string, args ...any) error {
	result, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("settle notification intent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle notification intent rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) ReclaimStale(ctx context.Context, claimedBefore, now time.Time) (int, error) {
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE notification_intents
		SET status = 'pending', claimed_at = NULL, updated_at = $2
		WHERE status = 'processing' AND claimed_at < $1`,
		claimedBefore, now,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale intents: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim stale intents rows affected: %w", err)
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*models.Intent, error) {
	var (
		intent                   models.Intent
		intentID, tenant, recpnt uuid.UUID
		typ, status              string
		payload                  []byte
		dedupeDay, claimedAt     sql.NullTime
		batchKey                 sql.NullString
		deliveryID               uuid.NullUUID
	)
	err := row.Scan(
		&intentID, &tenant, &recpnt, &typ, &payload, &dedupeDay, &status,
		&intent.RetryCount, &intent.LastError, &intent.SendAfter, &batchKey, &claimedAt, &deliveryID,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &intent.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	intent.ID = id.IntentID(intentID)
	intent.TenantID = id.TenantID(tenant)
	intent.RecipientID = id.ActorID(recpnt)
	intent.Type = models.Type(typ)
	intent.Status = models.Status(status)
	if dedupeDay.Valid {
		intent.DedupeDay = models.DayOf(dedupeDay.Time)
	}
	if batchKey.Valid {
		intent.BatchKey = batchKey.String
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		intent.ClaimedAt = &t
	}
	if deliveryID.Valid {
		intent.DeliveryID = id.DeliveryID(deliveryID.UUID)
	}
	return &intent, nil
}

func intentIDStrings(ids []id.IntentID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}
