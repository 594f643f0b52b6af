package handler

import (
	"time"

	"auditgov/internal/observation/models"
	"auditgov/internal/observation/repeat"
)

// ObservationResponse is the JSON view of an Observation.
type ObservationResponse struct {
	ID                      string           `json:"id"`
	Title                   string           `json:"title"`
	RiskCategory            string           `json:"risk_category,omitempty"`
	Narrative               models.Narrative `json:"narrative"`
	Severity                string           `json:"severity"`
	Status                  string           `json:"status"`
	Version                 int              `json:"version"`
	BranchID                string           `json:"branch_id,omitempty"`
	AuditAreaID             string           `json:"audit_area_id,omitempty"`
	AssigneeID              string           `json:"assignee_id,omitempty"`
	DueDate                 *time.Time       `json:"due_date,omitempty"`
	ResolvedDuringFieldwork bool             `json:"resolved_during_fieldwork"`
	FieldworkReason         string           `json:"fieldwork_reason,omitempty"`
	LatestResponseType      string           `json:"latest_response_type,omitempty"`
	LatestResponseAt        *time.Time       `json:"latest_response_at,omitempty"`
	RepeatOfID              string           `json:"repeat_of_id,omitempty"`
	RepeatOccurrence        int              `json:"repeat_occurrence,omitempty"`
	EvidenceCount           int              `json:"evidence_count"`
	CreatedBy               string           `json:"created_by"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
	StatusChangedAt         time.Time        `json:"status_changed_at"`
}

func FromObservation(o *models.Observation) *ObservationResponse {
	resp := &ObservationResponse{
		ID:                      o.ID.String(),
		Title:                   o.Title,
		RiskCategory:            o.RiskCategory,
		Narrative:               o.Narrative,
		Severity:                string(o.Severity),
		Status:                  string(o.Status),
		Version:                 o.Version,
		DueDate:                 o.DueDate,
		ResolvedDuringFieldwork: o.ResolvedDuringFieldwork,
		FieldworkReason:         o.FieldworkReason,
		LatestResponseType:      string(o.LatestResponseType),
		LatestResponseAt:        o.LatestResponseAt,
		RepeatOccurrence:        o.RepeatOccurrence,
		EvidenceCount:           o.EvidenceCount,
		CreatedBy:               o.CreatedBy.String(),
		CreatedAt:               o.CreatedAt,
		UpdatedAt:               o.UpdatedAt,
		StatusChangedAt:         o.StatusChangedAt,
	}
	if !o.BranchID.IsNil() {
		resp.BranchID = o.BranchID.String()
	}
	if !o.AuditAreaID.IsNil() {
		resp.AuditAreaID = o.AuditAreaID.String()
	}
	if !o.AssigneeID.IsNil() {
		resp.AssigneeID = o.AssigneeID.String()
	}
	if o.IsLinkedRepeat() {
		resp.RepeatOfID = o.RepeatOfID.String()
	}
	return resp
}

type TimelineEntryResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

type TimelineResponse struct {
	Entries []TimelineEntryResponse `json:"entries"`
}

func FromTimeline(entries []models.TimelineEntry) *TimelineResponse {
	out := make([]TimelineEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = TimelineEntryResponse{
			ID:        e.ID.String(),
			Kind:      string(e.Kind),
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			Comment:   e.Comment,
			ActorID:   e.ActorID.String(),
			CreatedAt: e.CreatedAt,
		}
	}
	return &TimelineResponse{Entries: out}
}

type AuditeeResponseView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ResponsesResponse struct {
	Responses []AuditeeResponseView `json:"responses"`
}

func FromResponses(rs []models.AuditeeResponse) *ResponsesResponse {
	out := make([]AuditeeResponseView, len(rs))
	for i, r := range rs {
		out[i] = AuditeeResponseView{
			ID:        r.ID.String(),
			Type:      string(r.Type),
			Text:      r.Text,
			ActorID:   r.ActorID.String(),
			CreatedAt: r.CreatedAt,
		}
	}
	return &ResponsesResponse{Responses: out}
}

type TransitionResponse struct {
	Status string `json:"status"`
}

type EvidenceCapacityResponse struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

type CandidatesResponse struct {
	Candidates []repeat.Candidate `json:"candidates"`
}
