// Package domain holds the identity vocabulary shared by every bounded
// context: typed identifiers, the authenticated actor and its roles.
package domain

import (
	"github.com/google/uuid"

	dErrors "auditgov/pkg/domain-errors"
)

// Typed identifiers. Distinct named types keep a TenantID from being passed
// where an ObservationID is expected.
type (
	TenantID        uuid.UUID
	ActorID         uuid.UUID
	SessionID       uuid.UUID
	ObservationID   uuid.UUID
	BranchID        uuid.UUID
	AuditAreaID     uuid.UUID
	TimelineEntryID uuid.UUID
	ResponseID      uuid.UUID
	IntentID        uuid.UUID
	DeliveryID      uuid.UUID
)

func (id TenantID) String() string        { return uuid.UUID(id).String() }
func (id ActorID) String() string         { return uuid.UUID(id).String() }
func (id SessionID) String() string       { return uuid.UUID(id).String() }
func (id ObservationID) String() string   { return uuid.UUID(id).String() }
func (id BranchID) String() string        { return uuid.UUID(id).String() }
func (id AuditAreaID) String() string     { return uuid.UUID(id).String() }
func (id TimelineEntryID) String() string { return uuid.UUID(id).String() }
func (id ResponseID) String() string      { return uuid.UUID(id).String() }
func (id IntentID) String() string        { return uuid.UUID(id).String() }
func (id DeliveryID) String() string      { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ObservationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BranchID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id AuditAreaID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id IntentID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// Text encoding keeps IDs as canonical UUID strings in JSON payloads.
func (id TenantID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id ActorID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id SessionID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ObservationID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id BranchID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id AuditAreaID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id TimelineEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ResponseID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id IntentID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id DeliveryID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }

func (id *TenantID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ActorID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SessionID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ObservationID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BranchID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditAreaID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TimelineEntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ResponseID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *IntentID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DeliveryID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }

// NewObservationID and friends mint random identifiers.
func NewObservationID() ObservationID     { return ObservationID(uuid.New()) }
func NewTimelineEntryID() TimelineEntryID { return TimelineEntryID(uuid.New()) }
func NewResponseID() ResponseID           { return ResponseID(uuid.New()) }
func NewIntentID() IntentID               { return IntentID(uuid.New()) }
func NewDeliveryID() DeliveryID           { return DeliveryID(uuid.New()) }

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+field)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" cannot be nil")
	}
	return parsed, nil
}

// ParseTenantID parses a tenant identifier at a trust boundary.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant_id")
	return TenantID(u), err
}

// ParseActorID parses an actor identifier at a trust boundary.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor_id")
	return ActorID(u), err
}

// ParseSessionID parses a session identifier at a trust boundary.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session_id")
	return SessionID(u), err
}

// ParseObservationID parses an observation identifier at a trust boundary.
func ParseObservationID(s string) (ObservationID, error) {
	u, err := parseUUID(s, "observation_id")
	return ObservationID(u), err
}

// ParseBranchID parses a branch identifier at a trust boundary.
func ParseBranchID(s string) (BranchID, error) {
	u, err := parseUUID(s, "branch_id")
	return BranchID(u), err
}

// ParseAuditAreaID parses an audit-area identifier at a trust boundary.
func ParseAuditAreaID(s string) (AuditAreaID, error) {
	u, err := parseUUID(s, "audit_area_id")
	return AuditAreaID(u), err
}
