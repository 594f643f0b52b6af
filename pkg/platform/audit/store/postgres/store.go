package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "auditgov/pkg/domain"
	audit "auditgov/pkg/platform/audit"
	txcontext "auditgov/pkg/platform/tx"
)

// AggregateType tags outbox rows written by this store.
const AggregateType = "observation"

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the caller's transaction and
// published to Kafka by the outbox relay.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Timestamp     string `json:"timestamp"`
	TenantID      string `json:"tenant_id"`
	ActorID       string `json:"actor_id"`
	SessionID     string `json:"session_id,omitempty"`
	ObservationID string `json:"observation_id"`
	Action        string `json:"action"`
	FromStatus    string `json:"from_status,omitempty"`
	ToStatus      string `json:"to_status,omitempty"`
	Decision      string `json:"decision,omitempty"`
	Justification string `json:"justification,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	ClientIP      string `json:"client_ip,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
}

// Append inserts the event into the outbox using the transaction in ctx
// when one is present.
func (s *Store) Append(ctx context.Context, event audit.ComplianceEvent) error {
	eventID := uuid.New()

	payload := outboxPayload{
		ID:            eventID.String(),
		Category:      string(event.Action.Category()),
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
		TenantID:      event.TenantID.String(),
		ActorID:       event.ActorID.String(),
		ObservationID: event.ObservationID.String(),
		Action:        string(event.Action),
		FromStatus:    event.FromStatus,
		ToStatus:      event.ToStatus,
		Decision:      event.Decision,
		Justification: event.Justification,
		RequestID:     event.RequestID,
		ClientIP:      event.ClientIP,
		UserAgent:     event.UserAgent,
	}
	if !event.SessionID.IsNil() {
		payload.SessionID = event.SessionID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		eventID,
		AggregateType,
		event.ObservationID.String(),
		string(event.Action),
		payloadBytes,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByObservation returns the audit events recorded for one observation,
// oldest first, including those not yet relayed.
func (s *Store) ListByObservation(ctx context.Context, observationID id.ObservationID) ([]audit.ComplianceEvent, error) {
	query := `
		SELECT payload
		FROM outbox
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY created_at ASC, id ASC
	`
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, AggregateType, observationID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.ComplianceEvent
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func decodePayload(raw []byte) (audit.ComplianceEvent, error) {
	var p outboxPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return audit.ComplianceEvent{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.ComplianceEvent{}, fmt.Errorf("parse audit timestamp: %w", err)
	}
	event := audit.ComplianceEvent{
		Timestamp:     ts,
		Action:        audit.AuditEvent(p.Action),
		FromStatus:    p.FromStatus,
		ToStatus:      p.ToStatus,
		Decision:      p.Decision,
		Justification: p.Justification,
		RequestID:     p.RequestID,
		ClientIP:      p.ClientIP,
		UserAgent:     p.UserAgent,
	}
	if event.TenantID, err = id.ParseTenantID(p.TenantID); err != nil {
		return audit.ComplianceEvent{}, err
	}
	if event.ActorID, err = id.ParseActorID(p.ActorID); err != nil {
		return audit.ComplianceEvent{}, err
	}
	if event.ObservationID, err = id.ParseObservationID(p.ObservationID); err != nil {
		return audit.ComplianceEvent{}, err
	}
	if p.SessionID != "" {
		if event.SessionID, err = id.ParseSessionID(p.SessionID); err != nil {
			return audit.ComplianceEvent{}, err
		}
	}
	return event, nil
}
