// Package models holds the notification queue's value types: intents, their
// delivery state machine and the delivery log that pairs with a sent intent.
package models

import (
	"math"
	"strings"
	"time"

	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
)

const (
	// MaxAttempts is the delivery ceiling. The intent is failed once
	// RetryCount reaches it.
	MaxAttempts = 3

	// DefaultBatchWindow delays batched intents so a burst coalesces.
	DefaultBatchWindow = 5 * time.Minute

	dayLayout = "2006-01-02"
)

// Type identifies what an intent is about. The renderer is keyed by it.
type Type string

const (
	TypeAssignment         Type = "assignment"
	TypeResponseReceived   Type = "response_received"
	TypeDeadlineReminder7d Type = "deadline_reminder_7d"
	TypeDeadlineReminder3d Type = "deadline_reminder_3d"
	TypeDeadlineReminder1d Type = "deadline_reminder_1d"
	TypeOverdueEscalation  Type = "overdue_escalation"
	TypeWeeklyDigest       Type = "weekly_digest"
	TypeBulkDigest         Type = "bulk_digest"
)

var allTypes = []Type{
	TypeAssignment,
	TypeResponseReceived,
	TypeDeadlineReminder7d,
	TypeDeadlineReminder3d,
	TypeDeadlineReminder1d,
	TypeOverdueEscalation,
	TypeWeeklyDigest,
	TypeBulkDigest,
}

func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	for _, v := range allTypes {
		if v == t {
			return t, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid notification type: "+raw)
}

// IsScheduled reports whether the type is produced by the scheduled scans
// and therefore subject to the per-day duplicate check.
func (t Type) IsScheduled() bool {
	switch t {
	case TypeDeadlineReminder7d, TypeDeadlineReminder3d, TypeDeadlineReminder1d,
		TypeOverdueEscalation, TypeWeeklyDigest:
		return true
	}
	return false
}

// DeadlineReminderFor maps days-until-due to a reminder type.
func DeadlineReminderFor(days int) (Type, bool) {
	switch days {
	case 7:
		return TypeDeadlineReminder7d, true
	case 3:
		return TypeDeadlineReminder3d, true
	case 1:
		return TypeDeadlineReminder1d, true
	}
	return "", false
}

// Status is the intent delivery state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Payload is the structured data a renderer needs. ObservationID is the key
// the duplicate check reads.
type Payload struct {
	ObservationID id.ObservationID `json:"observation_id"`
	Title         string           `json:"title"`
	Severity      string           `json:"severity,omitempty"`
	Status        string           `json:"status,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	DaysRemaining int              `json:"days_remaining,omitempty"`
	DaysOverdue   int              `json:"days_overdue,omitempty"`
	ResponseType  string           `json:"response_type,omitempty"`
}

// Intent is one queued unit of outbound communication.
type Intent struct {
	ID          id.IntentID
	TenantID    id.TenantID
	RecipientID id.ActorID
	Type        Type
	Payload     Payload
	// DedupeDay is the UTC calendar day (YYYY-MM-DD) for scheduled types,
	// empty otherwise.
	DedupeDay  string
	Status     Status
	RetryCount int
	LastError  string
	SendAfter  time.Time
	BatchKey   string
	ClaimedAt  *time.Time
	DeliveryID id.DeliveryID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (i *Intent) IsBatched() bool {
	return i.BatchKey != ""
}

// NextAttempt applies a failed delivery to the intent's counters. It
// returns the status the intent moves to and, when pending, the time it
// becomes eligible again.
func (i *Intent) NextAttempt(now time.Time) (Status, time.Time) {
	retries := i.RetryCount + 1
	if retries >= MaxAttempts {
		return StatusFailed, time.Time{}
	}
	return StatusPending, now.Add(Backoff(retries))
}

// Backoff is 2^retryCount minutes.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(math.Pow(2, float64(retryCount))) * time.Minute
}

// DayOf is the dedupe day for t.
func DayOf(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// DeliveryLog is written with every successful send and linked from each
// intent it covered.
type DeliveryLog struct {
	ID          id.DeliveryID
	TenantID    id.TenantID
	RecipientID id.ActorID
	Type        Type
	Subject     string
	ContentHash string
	IntentCount int
	DeliveredAt time.Time
}

// EnqueueRequest is the input of the enqueue path.
type EnqueueRequest struct {
	TenantID    id.TenantID
	RecipientID id.ActorID
	Type        Type
	Payload     Payload
	BatchKey    string
}

func (r EnqueueRequest) Validate() error {
	if r.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	if r.RecipientID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "recipient_id is required")
	}
	if _, err := ParseType(string(r.Type)); err != nil {
		return err
	}
	if r.Type.IsScheduled() && r.Payload.ObservationID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "scheduled notifications need an observation_id in the payload")
	}
	return nil
}

// Message is a rendered notification ready for a sender.
type Message struct {
	IntentIDs   []id.IntentID `json:"intent_ids"`
	TenantID    id.TenantID   `json:"tenant_id"`
	RecipientID id.ActorID    `json:"recipient_id"`
	Type        Type          `json:"type"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"`
}
