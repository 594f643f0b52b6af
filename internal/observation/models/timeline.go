package models

import (
	"time"

	id "auditgov/pkg/domain"
)

// EventKind names a Timeline Entry.
type EventKind string

const (
	EventCreated                 EventKind = "created"
	EventStatusChanged           EventKind = "status_changed"
	EventSeverityEscalated       EventKind = "severity_escalated"
	EventRepeatConfirmed         EventKind = "repeat_confirmed"
	EventRepeatDismissed         EventKind = "repeat_dismissed"
	EventResolvedDuringFieldwork EventKind = "resolved_during_fieldwork"
	EventEvidenceUploaded        EventKind = "evidence_uploaded"
	EventAuditeeResponse         EventKind = "auditee_response"
)

// AutoResponseComment annotates the ISSUED -> RESPONSE move triggered by
// the first auditee response.
const AutoResponseComment = "auto: first auditee response"

// TimelineEntry is an immutable fact about an Observation. Entries are
// never updated or deleted and are read back in creation order.
type TimelineEntry struct {
	ID            id.TimelineEntryID `json:"id"`
	TenantID      id.TenantID        `json:"tenant_id"`
	ObservationID id.ObservationID   `json:"observation_id"`
	Kind          EventKind          `json:"kind"`
	OldValue      string             `json:"old_value,omitempty"`
	NewValue      string             `json:"new_value,omitempty"`
	Comment       string             `json:"comment,omitempty"`
	ActorID       id.ActorID         `json:"actor_id"`
	CreatedAt     time.Time          `json:"created_at"`
	// Seq orders entries written in the same instant.
	Seq int64 `json:"-"`
}

// NewTimelineEntry stamps a fresh entry for obs.
func NewTimelineEntry(obs *Observation, kind EventKind, actor id.ActorID, oldValue, newValue, comment string, now time.Time) TimelineEntry {
	return TimelineEntry{
		ID:            id.NewTimelineEntryID(),
		TenantID:      obs.TenantID,
		ObservationID: obs.ID,
		Kind:          kind,
		OldValue:      oldValue,
		NewValue:      newValue,
		Comment:       comment,
		ActorID:       actor,
		CreatedAt:     now,
	}
}
