package models

import (
	"strings"

	dErrors "auditgov/pkg/domain-errors"
)

// Status is the lifecycle position of an Observation.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusReviewed   Status = "REVIEWED"
	StatusIssued     Status = "ISSUED"
	StatusResponse   Status = "RESPONSE"
	StatusCompliance Status = "COMPLIANCE"
	StatusClosed     Status = "CLOSED"
)

var allStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusReviewed, StatusIssued,
	StatusResponse, StatusCompliance, StatusClosed,
}

// ParseStatus accepts any letter case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	for _, v := range allStatuses {
		if v == s {
			return s, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid status: "+raw)
}

// IsOpen reports whether the Observation is with the auditee, i.e. issued
// and not yet closed.
func (s Status) IsOpen() bool {
	return s == StatusIssued || s == StatusResponse || s == StatusCompliance
}

// IsPreIssue reports whether the Observation is still in fieldwork.
func (s Status) IsPreIssue() bool {
	return s == StatusDraft || s == StatusSubmitted
}

// AcceptsResponses reports whether auditee responses may be recorded.
func (s Status) AcceptsResponses() bool {
	return s == StatusIssued || s == StatusResponse
}
