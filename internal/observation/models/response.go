package models

import (
	"strings"
	"time"

	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
)

// ResponseType classifies an auditee reply.
type ResponseType string

const (
	ResponseClarification    ResponseType = "clarification"
	ResponseComplianceAction ResponseType = "compliance_action"
	ResponseExtensionRequest ResponseType = "extension_request"
)

const maxResponseLength = 10000

func ParseResponseType(raw string) (ResponseType, error) {
	t := ResponseType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case ResponseClarification, ResponseComplianceAction, ResponseExtensionRequest:
		return t, nil
	}
	return "", dErrors.New(dErrors.CodeValidation,
		"response type must be clarification, compliance_action or extension_request")
}

// AuditeeResponse is an immutable reply to an issued Observation.
type AuditeeResponse struct {
	ID            id.ResponseID    `json:"id"`
	TenantID      id.TenantID      `json:"tenant_id"`
	ObservationID id.ObservationID `json:"observation_id"`
	Type          ResponseType     `json:"type"`
	Text          string           `json:"text"`
	ActorID       id.ActorID       `json:"actor_id"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NewAuditeeResponse validates and builds a response record.
func NewAuditeeResponse(obs *Observation, respType ResponseType, text string, actor id.ActorID, now time.Time) (*AuditeeResponse, error) {
	respType, err := ParseResponseType(string(respType))
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "response text is required")
	}
	if len(text) > maxResponseLength {
		return nil, dErrors.New(dErrors.CodeValidation, "response text must be 10000 characters or less")
	}
	return &AuditeeResponse{
		ID:            id.NewResponseID(),
		TenantID:      obs.TenantID,
		ObservationID: obs.ID,
		Type:          respType,
		Text:          text,
		ActorID:       actor,
		CreatedAt:     now,
	}, nil
}
