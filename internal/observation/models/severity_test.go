package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalateForOccurrence(t *testing.T) {
	tests := []struct {
		name       string
		current    Severity
		occurrence int
		want       Severity
	}{
		{"first occurrence keeps severity", SeverityMedium, 1, SeverityMedium},
		{"second occurrence steps LOW", SeverityLow, 2, SeverityMedium},
		{"second occurrence steps MEDIUM", SeverityMedium, 2, SeverityHigh},
		{"second occurrence steps HIGH", SeverityHigh, 2, SeverityCritical},
		{"second occurrence saturates CRITICAL", SeverityCritical, 2, SeverityCritical},
		{"third occurrence forces CRITICAL from LOW", SeverityLow, 3, SeverityCritical},
		{"later occurrences force CRITICAL", SeverityMedium, 7, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscalateForOccurrence(tt.current, tt.occurrence))
		})
	}
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity(" high ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)
	assert.True(t, s.IsElevated())
	assert.False(t, SeverityMedium.IsElevated())

	_, err = ParseSeverity("severe")
	assert.Error(t, err)
}
