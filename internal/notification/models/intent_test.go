package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/testutil"
)

func TestNextAttempt(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	intent := &Intent{}

	var delays []time.Duration
	for attempt := 1; ; attempt++ {
		status, sendAfter := intent.NextAttempt(now)
		intent.RetryCount++
		if status == StatusFailed {
			assert.Equal(t, MaxAttempts, attempt, "fails on the last allowed attempt")
			break
		}
		require.Equal(t, StatusPending, status)
		delays = append(delays, sendAfter.Sub(now))
	}

	assert.Equal(t, []time.Duration{2 * time.Minute, 4 * time.Minute}, delays)
	assert.Equal(t, MaxAttempts, intent.RetryCount)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(0))
	assert.Equal(t, 8*time.Minute, Backoff(3))
	assert.Equal(t, time.Minute, Backoff(-1))
}

func TestDeadlineReminderFor(t *testing.T) {
	for days, want := range map[int]Type{7: TypeDeadlineReminder7d, 3: TypeDeadlineReminder3d, 1: TypeDeadlineReminder1d} {
		got, ok := DeadlineReminderFor(days)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := DeadlineReminderFor(2)
	assert.False(t, ok)
}

func TestDayOf(t *testing.T) {
	late := time.Date(2026, 3, 2, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	assert.Equal(t, "2026-03-03", DayOf(late))
}

func TestEnqueueRequestValidate(t *testing.T) {
	tenant := testutil.NewTenant()
	recipient := testutil.NewActor(tenant).ID

	tests := []struct {
		name string
		req  EnqueueRequest
		ok   bool
	}{
		{"assignment", EnqueueRequest{TenantID: tenant, RecipientID: recipient, Type: TypeAssignment}, true},
		{"missing tenant", EnqueueRequest{RecipientID: recipient, Type: TypeAssignment}, false},
		{"missing recipient", EnqueueRequest{TenantID: tenant, Type: TypeAssignment}, false},
		{"unknown type", EnqueueRequest{TenantID: tenant, RecipientID: recipient, Type: "sms"}, false},
		{"scheduled needs observation", EnqueueRequest{TenantID: tenant, RecipientID: recipient, Type: TypeOverdueEscalation}, false},
		{"scheduled with observation", EnqueueRequest{
			TenantID: tenant, RecipientID: recipient, Type: TypeOverdueEscalation,
			Payload: Payload{ObservationID: id.NewObservationID()},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}
