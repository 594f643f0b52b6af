package models

import (
	"strings"

	dErrors "auditgov/pkg/domain-errors"
)

// Severity is an ordered risk rating: LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityOrder = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity accepts any letter case.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if s.Rank() < 0 {
		return "", dErrors.New(dErrors.CodeValidation, "invalid severity: "+raw)
	}
	return s, nil
}

// Rank is the ordinal position, or -1 for an unknown value.
func (s Severity) Rank() int {
	for i, v := range severityOrder {
		if v == s {
			return i
		}
	}
	return -1
}

func (s Severity) IsValid() bool { return s.Rank() >= 0 }

// Next returns the severity one step up. CRITICAL saturates.
func (s Severity) Next() Severity {
	r := s.Rank()
	if r < 0 || r >= len(severityOrder)-1 {
		return s
	}
	return severityOrder[r+1]
}

// IsElevated is true for HIGH and CRITICAL, the tiers whose closure needs
// an executive.
func (s Severity) IsElevated() bool {
	return s.Rank() >= SeverityHigh.Rank()
}

// EscalateForOccurrence applies the repeat-finding rule: a second occurrence
// raises severity one step, a third or later forces CRITICAL.
func EscalateForOccurrence(current Severity, occurrenceCount int) Severity {
	switch {
	case occurrenceCount >= 3:
		return SeverityCritical
	case occurrenceCount == 2:
		return current.Next()
	default:
		return current
	}
}
