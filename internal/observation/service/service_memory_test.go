package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditgov/internal/observation/models"
	"auditgov/internal/observation/store/memory"
	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/platform/audit"
	"auditgov/pkg/platform/audit/publishers/compliance"
	auditmemory "auditgov/pkg/platform/audit/store/memory"
	"auditgov/pkg/requestcontext"
	"auditgov/pkg/testutil"
)

type memoryFixture struct {
	store  *memory.InMemoryStore
	audits *auditmemory.InMemoryStore
	svc    *Service
	tenant id.TenantID
	ctx    context.Context
}

func newMemoryFixture(t *testing.T, opts ...Option) *memoryFixture {
	t.Helper()
	st := memory.New()
	audits := auditmemory.NewInMemoryStore()
	svc, err := New(st, st, compliance.New(audits), opts...)
	require.NoError(t, err)
	return &memoryFixture{
		store:  st,
		audits: audits,
		svc:    svc,
		tenant: testutil.NewTenant(),
		ctx:    requestcontext.WithTime(context.Background(), time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)),
	}
}

// issued drives a fresh Observation to ISSUED and returns it with the
// auditee it is assigned to.
func (f *memoryFixture) issued(t *testing.T, severity models.Severity) (*models.Observation, id.Actor) {
	t.Helper()
	auditor := testutil.NewActor(f.tenant, id.RoleAuditor)
	manager := testutil.NewActor(f.tenant, id.RoleAuditManager)
	auditee := testutil.NewActor(f.tenant, id.RoleAuditee)

	obs, err := f.svc.Create(f.ctx, auditor, models.CreateObservationCommand{
		Title:      "Suspense account reconciliations overdue",
		Severity:   severity,
		AssigneeID: auditee.ID,
		Narrative:  models.Narrative{Condition: "Three months unreconciled", Criteria: "Finance SOP 7"},
	})
	require.NoError(t, err)

	steps := []struct {
		actor  id.Actor
		target models.Status
	}{
		{auditor, models.StatusSubmitted},
		{manager, models.StatusReviewed},
		{manager, models.StatusIssued},
	}
	for i, step := range steps {
		_, err := f.svc.RequestTransition(f.ctx, step.actor, obs.ID, step.target, "moving on", i+1)
		require.NoError(t, err)
	}
	obs, err = f.svc.Get(f.ctx, manager, obs.ID)
	require.NoError(t, err)
	return obs, auditee
}

func TestSubmitResponse_FirstReplyMovesToResponse(t *testing.T) {
	f := newMemoryFixture(t)
	obs, auditee := f.issued(t, models.SeverityMedium)
	require.Equal(t, 4, obs.Version)

	updated, err := f.svc.SubmitResponse(f.ctx, auditee, obs.ID, models.ResponseComplianceAction, "Reconciled and signed off", 4)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResponse, updated.Status)
	assert.Equal(t, 5, updated.Version, "one version step for the whole operation")
	assert.Equal(t, models.ResponseComplianceAction, updated.LatestResponseType)

	entries, err := f.svc.ListTimeline(f.ctx, auditee, obs.ID)
	require.NoError(t, err)
	last := entries[len(entries)-2:]
	assert.Equal(t, models.EventAuditeeResponse, last[0].Kind)
	assert.Equal(t, models.EventStatusChanged, last[1].Kind)
	assert.Equal(t, models.AutoResponseComment, last[1].Comment)

	t.Run("second reply stays in RESPONSE without a status entry", func(t *testing.T) {
		again, err := f.svc.SubmitResponse(f.ctx, auditee, obs.ID, models.ResponseClarification, "Adding the ledger extract", 5)
		require.NoError(t, err)
		assert.Equal(t, models.StatusResponse, again.Status)
		assert.Equal(t, 6, again.Version)

		after, err := f.svc.ListTimeline(f.ctx, auditee, obs.ID)
		require.NoError(t, err)
		assert.Len(t, after, len(entries)+1)

		responses, err := f.svc.ListResponses(f.ctx, auditee, obs.ID)
		require.NoError(t, err)
		assert.Len(t, responses, 2)
	})

	t.Run("auditor cannot respond", func(t *testing.T) {
		_, err := f.svc.SubmitResponse(f.ctx, testutil.NewActor(f.tenant, id.RoleAuditor), obs.ID, models.ResponseClarification, "text", 6)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestSubmitResponse_StoresCanonicalType(t *testing.T) {
	f := newMemoryFixture(t)
	obs, auditee := f.issued(t, models.SeverityLow)

	updated, err := f.svc.SubmitResponse(f.ctx, auditee, obs.ID, models.ResponseType("  Extension_Request "), "Need two more weeks", 4)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseExtensionRequest, updated.LatestResponseType)

	responses, err := f.svc.ListResponses(f.ctx, auditee, obs.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, models.ResponseExtensionRequest, responses[0].Type)

	entries, err := f.svc.ListTimeline(f.ctx, auditee, obs.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.ResponseExtensionRequest), entries[len(entries)-2].NewValue)

	t.Run("unknown type is a validation error", func(t *testing.T) {
		_, err := f.svc.SubmitResponse(f.ctx, auditee, obs.ID, models.ResponseType("complaint"), "text", 5)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestSubmitResponse_RejectedOutsideIssuedOrResponse(t *testing.T) {
	f := newMemoryFixture(t)
	officer := testutil.NewActor(f.tenant, id.RoleComplianceOfficer)
	obs, err := f.svc.Create(f.ctx, testutil.NewActor(f.tenant, id.RoleAuditor), models.CreateObservationCommand{
		Title:     "Draft finding",
		Severity:  models.SeverityLow,
		Narrative: models.Narrative{Condition: "c", Criteria: "k"},
	})
	require.NoError(t, err)

	_, err = f.svc.SubmitResponse(f.ctx, officer, obs.ID, models.ResponseClarification, "early reply", 1)
	require.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Contains(t, dErrors.MessageOf(err), "ISSUED or RESPONSE")

	responses, err := f.svc.ListResponses(f.ctx, officer, obs.ID)
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestResolveDuringFieldwork(t *testing.T) {
	f := newMemoryFixture(t)
	auditor := testutil.NewActor(f.tenant, id.RoleAuditor)
	obs, err := f.svc.Create(f.ctx, auditor, models.CreateObservationCommand{
		Title:     "Teller drawer shortage",
		Severity:  models.SeverityLow,
		Narrative: models.Narrative{Condition: "Shortage of 40", Criteria: "Cash policy"},
	})
	require.NoError(t, err)

	t.Run("short reason is a validation error", func(t *testing.T) {
		_, err := f.svc.ResolveDuringFieldwork(f.ctx, auditor, obs.ID, " too short", 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("compliance officer is not allowed", func(t *testing.T) {
		officer := testutil.NewActor(f.tenant, id.RoleComplianceOfficer)
		_, err := f.svc.ResolveDuringFieldwork(f.ctx, officer, obs.ID, "branch corrected the shortage on site", 1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("resolves once and blocks further transitions", func(t *testing.T) {
		resolved, err := f.svc.ResolveDuringFieldwork(f.ctx, auditor, obs.ID, "branch corrected the shortage on site", 1)
		require.NoError(t, err)
		assert.True(t, resolved.ResolvedDuringFieldwork)
		assert.Equal(t, models.StatusDraft, resolved.Status)
		assert.Equal(t, 2, resolved.Version)

		_, err = f.svc.ResolveDuringFieldwork(f.ctx, auditor, obs.ID, "branch corrected the shortage on site", 2)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = f.svc.RequestTransition(f.ctx, auditor, obs.ID, models.StatusSubmitted, "submit anyway", 2)
		require.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		assert.Contains(t, dErrors.MessageOf(err), "fieldwork")
	})
}

func TestEvidenceCap(t *testing.T) {
	f := newMemoryFixture(t)
	obs, auditee := f.issued(t, models.SeverityLow)

	remaining, err := f.svc.CheckEvidenceCapacity(f.ctx, auditee, obs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxEvidencePerObservation, remaining)

	var wg sync.WaitGroup
	results := make(chan error, models.MaxEvidencePerObservation+5)
	for i := 0; i < models.MaxEvidencePerObservation+5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ConfirmEvidenceUpload(f.ctx, auditee, obs.ID, "evidence/receipt.pdf")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, limited int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case dErrors.HasCode(err, dErrors.CodeLimitExceeded):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, models.MaxEvidencePerObservation, ok)
	assert.Equal(t, 5, limited)

	current, err := f.svc.Get(f.ctx, auditee, obs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxEvidencePerObservation, current.EvidenceCount)
	assert.Equal(t, obs.Version+models.MaxEvidencePerObservation, current.Version)

	_, err = f.svc.CheckEvidenceCapacity(f.ctx, auditee, obs.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLimitExceeded))
}

type failingAudit struct{}

func (failingAudit) Emit(context.Context, audit.ComplianceEvent) error {
	return dErrors.Wrap(errors.New("outbox unavailable"), dErrors.CodeInternal, "compliance audit persistence failed")
}

func TestAuditFailureLeavesNoPartialState(t *testing.T) {
	f := newMemoryFixture(t)
	obs, _ := f.issued(t, models.SeverityLow)
	manager := testutil.NewActor(f.tenant, id.RoleAuditManager)
	before, err := f.svc.ListTimeline(f.ctx, manager, obs.ID)
	require.NoError(t, err)

	broken, err := New(f.store, f.store, failingAudit{})
	require.NoError(t, err)
	_, err = broken.RequestTransition(f.ctx, manager, obs.ID, models.StatusResponse, "manual move", obs.Version)
	require.Error(t, err)

	current, err := f.svc.Get(f.ctx, manager, obs.ID)
	require.NoError(t, err)
	assert.Equal(t, obs.Version, current.Version)
	assert.Equal(t, models.StatusIssued, current.Status)

	after, err := f.svc.ListTimeline(f.ctx, manager, obs.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestComplianceRecordPerMutation(t *testing.T) {
	f := newMemoryFixture(t)
	obs, _ := f.issued(t, models.SeverityLow)

	events, err := f.audits.ListByObservation(f.ctx, obs.ID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, audit.EventObservationCreated, events[0].Action)
	for _, e := range events[1:] {
		assert.Equal(t, audit.EventObservationTransitioned, e.Action)
		assert.Equal(t, f.tenant, e.TenantID)
	}
}
