package audit

import (
	"context"
	"time"

	id "auditgov/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers governance decisions a regulator may ask to
	// see: lifecycle transitions, auditee responses, evidence and repeat
	// classification. These require guaranteed persistence.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity that is useful for
	// debugging but carries no regulatory weight.
	CategoryOperations EventCategory = "operations"
)

// AuditEvent names an audited governance action.
type AuditEvent string

const (
	EventObservationCreated      AuditEvent = "observation_created"
	EventObservationTransitioned AuditEvent = "observation_transitioned"
	EventFieldworkResolved       AuditEvent = "observation_resolved_during_fieldwork"
	EventResponseSubmitted       AuditEvent = "auditee_response_submitted"
	EventEvidenceConfirmed       AuditEvent = "evidence_upload_confirmed"
	EventRepeatConfirmed         AuditEvent = "repeat_finding_confirmed"
	EventRepeatDismissed         AuditEvent = "repeat_finding_dismissed"
	EventNotificationFailed      AuditEvent = "notification_delivery_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventObservationCreated:      CategoryCompliance,
	EventObservationTransitioned: CategoryCompliance,
	EventFieldworkResolved:       CategoryCompliance,
	EventResponseSubmitted:       CategoryCompliance,
	EventEvidenceConfirmed:       CategoryCompliance,
	EventRepeatConfirmed:         CategoryCompliance,
	EventRepeatDismissed:         CategoryCompliance,
	EventNotificationFailed:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures one governance decision together with the
// request context it was made in.
type ComplianceEvent struct {
	Timestamp     time.Time // set automatically if zero
	TenantID      id.TenantID
	ActorID       id.ActorID
	SessionID     id.SessionID
	ObservationID id.ObservationID
	Action        AuditEvent
	FromStatus    string
	ToStatus      string
	Decision      string // outcome, e.g. "escalated", "dismissed"
	Justification string // actor-supplied comment or reason
	RequestID     string
	ClientIP      string
	UserAgent     string
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// Store persists compliance events. Implementations must honour a
// transaction carried in ctx so events commit with the change they record.
type Store interface {
	Append(ctx context.Context, event ComplianceEvent) error
	ListByObservation(ctx context.Context, observationID id.ObservationID) ([]ComplianceEvent, error)
}
