package handler

import (
	"strings"
	"time"

	"auditgov/internal/observation/models"
	id "auditgov/pkg/domain"
)

// NarrativeRequest is the 5C body of a finding.
type NarrativeRequest struct {
	Condition      string `json:"condition" validate:"required,max=10000"`
	Criteria       string `json:"criteria" validate:"required,max=10000"`
	Cause          string `json:"cause" validate:"max=10000"`
	Effect         string `json:"effect" validate:"max=10000"`
	Recommendation string `json:"recommendation" validate:"max=10000"`
}

// CreateObservationRequest is the body of POST /observations.
type CreateObservationRequest struct {
	Title        string           `json:"title" validate:"required,max=300"`
	RiskCategory string           `json:"risk_category" validate:"max=100"`
	Narrative    NarrativeRequest `json:"narrative"`
	Severity     string           `json:"severity" validate:"required"`
	BranchID     string           `json:"branch_id"`
	AuditAreaID  string           `json:"audit_area_id"`
	AssigneeID   string           `json:"assignee_id"`
	DueDate      *time.Time       `json:"due_date"`

	parsed models.CreateObservationCommand
}

func (r *CreateObservationRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.RiskCategory = strings.TrimSpace(r.RiskCategory)
	r.Severity = strings.TrimSpace(r.Severity)
	r.Narrative.Condition = strings.TrimSpace(r.Narrative.Condition)
	r.Narrative.Criteria = strings.TrimSpace(r.Narrative.Criteria)
	r.BranchID = strings.TrimSpace(r.BranchID)
	r.AuditAreaID = strings.TrimSpace(r.AuditAreaID)
	r.AssigneeID = strings.TrimSpace(r.AssigneeID)
}

// Validate parses the typed fields. Optional IDs stay nil when empty.
func (r *CreateObservationRequest) Validate() error {
	severity, err := models.ParseSeverity(r.Severity)
	if err != nil {
		return err
	}
	cmd := models.CreateObservationCommand{
		Title:        r.Title,
		RiskCategory: r.RiskCategory,
		Severity:     severity,
		DueDate:      r.DueDate,
		Narrative: models.Narrative{
			Condition:      r.Narrative.Condition,
			Criteria:       r.Narrative.Criteria,
			Cause:          r.Narrative.Cause,
			Effect:         r.Narrative.Effect,
			Recommendation: r.Narrative.Recommendation,
		},
	}
	if r.BranchID != "" {
		if cmd.BranchID, err = id.ParseBranchID(r.BranchID); err != nil {
			return err
		}
	}
	if r.AuditAreaID != "" {
		if cmd.AuditAreaID, err = id.ParseAuditAreaID(r.AuditAreaID); err != nil {
			return err
		}
	}
	if r.AssigneeID != "" {
		if cmd.AssigneeID, err = id.ParseActorID(r.AssigneeID); err != nil {
			return err
		}
	}
	r.parsed = cmd
	return nil
}

func (r *CreateObservationRequest) Command() models.CreateObservationCommand {
	return r.parsed
}

// TransitionRequest is the body of POST /observations/{id}/transitions.
type TransitionRequest struct {
	TargetStatus    string `json:"target_status" validate:"required"`
	Comment         string `json:"comment" validate:"required,max=2000"`
	ExpectedVersion int    `json:"expected_version" validate:"required,min=1"`

	target models.Status
}

func (r *TransitionRequest) Normalize() {
	r.TargetStatus = strings.TrimSpace(r.TargetStatus)
	r.Comment = strings.TrimSpace(r.Comment)
}

func (r *TransitionRequest) Validate() error {
	target, err := models.ParseStatus(r.TargetStatus)
	if err != nil {
		return err
	}
	r.target = target
	return nil
}

// FieldworkResolutionRequest is the body of POST /observations/{id}/fieldwork-resolution.
type FieldworkResolutionRequest struct {
	Reason          string `json:"reason" validate:"required,max=2000"`
	ExpectedVersion int    `json:"expected_version" validate:"required,min=1"`
}

func (r *FieldworkResolutionRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

// ResponseRequest is the body of POST /observations/{id}/responses.
type ResponseRequest struct {
	Type            string `json:"type" validate:"required"`
	Text            string `json:"text" validate:"required,max=10000"`
	ExpectedVersion int    `json:"expected_version" validate:"required,min=1"`

	responseType models.ResponseType
}

func (r *ResponseRequest) Normalize() {
	r.Type = strings.TrimSpace(r.Type)
	r.Text = strings.TrimSpace(r.Text)
}

func (r *ResponseRequest) Validate() error {
	t, err := models.ParseResponseType(r.Type)
	if err != nil {
		return err
	}
	r.responseType = t
	return nil
}

// EvidenceRequest is the body of POST /observations/{id}/evidence.
type EvidenceRequest struct {
	EvidenceRef string `json:"evidence_ref" validate:"required,max=1024"`
}

func (r *EvidenceRequest) Normalize() {
	r.EvidenceRef = strings.TrimSpace(r.EvidenceRef)
}

// ConfirmRepeatRequest is the body of POST /observations/{id}/repeat/confirm.
type ConfirmRepeatRequest struct {
	PreviousObservationID string `json:"previous_observation_id" validate:"required"`
	ExpectedVersion       int    `json:"expected_version" validate:"required,min=1"`

	previous id.ObservationID
}

func (r *ConfirmRepeatRequest) Validate() error {
	previous, err := id.ParseObservationID(strings.TrimSpace(r.PreviousObservationID))
	if err != nil {
		return err
	}
	r.previous = previous
	return nil
}

// DismissRepeatRequest is the body of POST /observations/{id}/repeat/dismiss.
type DismissRepeatRequest struct {
	PreviousObservationID string `json:"previous_observation_id" validate:"required"`
	Comment               string `json:"comment" validate:"max=2000"`

	previous id.ObservationID
}

func (r *DismissRepeatRequest) Validate() error {
	previous, err := id.ParseObservationID(strings.TrimSpace(r.PreviousObservationID))
	if err != nil {
		return err
	}
	r.previous = previous
	return nil
}
