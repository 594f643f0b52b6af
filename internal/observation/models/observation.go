package models

import (
	"strings"
	"time"

	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
)

const (
	// MaxEvidencePerObservation caps evidence attachments.
	MaxEvidencePerObservation = 20
	// MinFieldworkReasonLength is the shortest accepted fieldwork-resolution reason.
	MinFieldworkReasonLength = 10
	// MaxTitleLength bounds the title.
	MaxTitleLength = 300
)

// Narrative is the "5C" body of a finding.
type Narrative struct {
	Condition      string `json:"condition"`
	Criteria       string `json:"criteria"`
	Cause          string `json:"cause"`
	Effect         string `json:"effect"`
	Recommendation string `json:"recommendation"`
}

// Observation is the aggregate root for an audit finding.
//
// Invariants:
//   - Version starts at 1 and increases by exactly 1 per successful mutation
//   - Status changes only along the transition table
//   - ResolvedDuringFieldwork is set at most once and is terminal
//   - EvidenceCount never exceeds MaxEvidencePerObservation
type Observation struct {
	ID           id.ObservationID `json:"id"`
	TenantID     id.TenantID      `json:"tenant_id"`
	Title        string           `json:"title"`
	RiskCategory string           `json:"risk_category,omitempty"`
	Narrative    Narrative        `json:"narrative"`
	Severity     Severity         `json:"severity"`
	Status       Status           `json:"status"`
	Version      int              `json:"version"`

	BranchID    id.BranchID    `json:"branch_id"`
	AuditAreaID id.AuditAreaID `json:"audit_area_id"`
	AssigneeID  id.ActorID     `json:"assignee_id"`
	DueDate     *time.Time     `json:"due_date,omitempty"`

	ResolvedDuringFieldwork bool   `json:"resolved_during_fieldwork"`
	FieldworkReason         string `json:"fieldwork_reason,omitempty"`

	LatestResponseType ResponseType `json:"latest_response_type,omitempty"`
	LatestResponseText string       `json:"latest_response_text,omitempty"`
	LatestResponseAt   *time.Time   `json:"latest_response_at,omitempty"`

	RepeatOfID       id.ObservationID `json:"repeat_of_id"`
	RepeatOccurrence int              `json:"repeat_occurrence,omitempty"`
	EvidenceCount    int              `json:"evidence_count"`

	CreatedBy       id.ActorID `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
}

// CreateObservationCommand carries the fields an auditor supplies when
// drafting a finding.
type CreateObservationCommand struct {
	Title        string
	RiskCategory string
	Narrative    Narrative
	Severity     Severity
	BranchID     id.BranchID
	AuditAreaID  id.AuditAreaID
	AssigneeID   id.ActorID
	DueDate      *time.Time
}

// NewObservation builds a DRAFT at version 1.
func NewObservation(obsID id.ObservationID, tenantID id.TenantID, createdBy id.ActorID, cmd CreateObservationCommand, now time.Time) (*Observation, error) {
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(title) > MaxTitleLength {
		return nil, dErrors.New(dErrors.CodeValidation, "title must be 300 characters or less")
	}
	if !cmd.Severity.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "severity must be LOW, MEDIUM, HIGH or CRITICAL")
	}
	narrative := Narrative{
		Condition:      strings.TrimSpace(cmd.Narrative.Condition),
		Criteria:       strings.TrimSpace(cmd.Narrative.Criteria),
		Cause:          strings.TrimSpace(cmd.Narrative.Cause),
		Effect:         strings.TrimSpace(cmd.Narrative.Effect),
		Recommendation: strings.TrimSpace(cmd.Narrative.Recommendation),
	}
	if narrative.Condition == "" || narrative.Criteria == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "narrative condition and criteria are required")
	}

	return &Observation{
		ID:              obsID,
		TenantID:        tenantID,
		Title:           title,
		RiskCategory:    strings.TrimSpace(cmd.RiskCategory),
		Narrative:       narrative,
		Severity:        cmd.Severity,
		Status:          StatusDraft,
		Version:         1,
		BranchID:        cmd.BranchID,
		AuditAreaID:     cmd.AuditAreaID,
		AssigneeID:      cmd.AssigneeID,
		DueDate:         cmd.DueDate,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}, nil
}

// VisibleTo applies the access scope: the tenant must match, and an actor
// holding only the auditee role sees only Observations assigned to them.
func (o *Observation) VisibleTo(actor id.Actor) bool {
	if o.TenantID != actor.TenantID {
		return false
	}
	if actor.IsAuditeeOnly() {
		return o.AssigneeID == actor.ID
	}
	return true
}

// HasRepeatScope reports whether branch and audit area are both set.
func (o *Observation) HasRepeatScope() bool {
	return !o.BranchID.IsNil() && !o.AuditAreaID.IsNil()
}

// IsLinkedRepeat reports whether a repeat has already been confirmed.
func (o *Observation) IsLinkedRepeat() bool {
	return !o.RepeatOfID.IsNil()
}

// ApplyTransition moves the Observation to target and bumps the version.
// Call AuthorizeTransition first.
func (o *Observation) ApplyTransition(target Status, now time.Time) {
	o.Status = target
	o.StatusChangedAt = now
	o.touch(now)
}

// CanResolveDuringFieldwork checks the shortcut terminal action.
func (o *Observation) CanResolveDuringFieldwork() error {
	if o.ResolvedDuringFieldwork {
		return dErrors.New(dErrors.CodeForbidden, "observation is already resolved during fieldwork")
	}
	if !o.Status.IsPreIssue() {
		return dErrors.New(dErrors.CodeForbidden,
			"fieldwork resolution is only allowed from DRAFT or SUBMITTED, observation is "+string(o.Status))
	}
	return nil
}

// ApplyFieldworkResolution marks the terminal flag. Status is unchanged.
func (o *Observation) ApplyFieldworkResolution(reason string, now time.Time) {
	o.ResolvedDuringFieldwork = true
	o.FieldworkReason = reason
	o.touch(now)
}

// ApplyResponse records the latest auditee reply. It reports whether the
// reply moved the Observation from ISSUED to RESPONSE.
func (o *Observation) ApplyResponse(resp *AuditeeResponse, now time.Time) (autoTransitioned bool) {
	o.LatestResponseType = resp.Type
	o.LatestResponseText = resp.Text
	at := resp.CreatedAt
	o.LatestResponseAt = &at
	if o.Status == StatusIssued {
		o.Status = StatusResponse
		o.StatusChangedAt = now
		autoTransitioned = true
	}
	o.touch(now)
	return autoTransitioned
}

// ApplyRepeat links the Observation to an earlier finding and sets the
// escalated severity.
func (o *Observation) ApplyRepeat(previous id.ObservationID, occurrence int, severity Severity, now time.Time) {
	o.RepeatOfID = previous
	o.RepeatOccurrence = occurrence
	o.Severity = severity
	o.touch(now)
}

func (o *Observation) touch(now time.Time) {
	o.Version++
	o.UpdatedAt = now
}
