package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "auditgov/pkg/domain-errors"
)

func TestRoleCapabilities(t *testing.T) {
	t.Run("only the chief audit executive closes elevated severity", func(t *testing.T) {
		for _, role := range []Role{RoleAuditor, RoleAuditManager, RoleComplianceOfficer, RoleAuditee} {
			assert.False(t, role.Grants(CapCloseElevated), "role %s", role)
		}
		assert.True(t, RoleChiefAuditExecutive.Grants(CapCloseElevated))
	})

	t.Run("auditee can only respond", func(t *testing.T) {
		assert.True(t, RoleAuditee.Grants(CapRespond))
		assert.False(t, RoleAuditee.Grants(CapCreate))
		assert.False(t, RoleAuditee.Grants(CapReview))
	})
}

func TestParseRoles(t *testing.T) {
	t.Run("normalizes and dedupes", func(t *testing.T) {
		roles, err := ParseRoles([]string{" Auditor", "auditor", "AUDIT_MANAGER"})
		require.NoError(t, err)
		assert.Equal(t, []Role{RoleAuditor, RoleAuditManager}, roles)
	})

	t.Run("rejects unknown tags", func(t *testing.T) {
		_, err := ParseRoles([]string{"superuser"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestActor(t *testing.T) {
	actor := Actor{
		ID:       ActorID(uuid.New()),
		TenantID: TenantID(uuid.New()),
		Roles:    []Role{RoleAuditee},
	}
	assert.True(t, actor.IsAuditeeOnly())
	assert.True(t, actor.Can(CapRespond))
	assert.False(t, actor.Can(CapSubmit))
	require.NoError(t, actor.Validate())

	actor.Roles = append(actor.Roles, RoleComplianceOfficer)
	assert.False(t, actor.IsAuditeeOnly())
	assert.Equal(t, "auditee,compliance_officer", actor.RoleNames())

	assert.True(t, dErrors.HasCode(Actor{}.Validate(), dErrors.CodeUnauthorized))
}

func TestRolesGranting(t *testing.T) {
	assert.Equal(t, []Role{RoleAuditManager, RoleChiefAuditExecutive}, RolesGranting(CapReview))
	assert.Equal(t, []Role{RoleChiefAuditExecutive}, RolesGranting(CapCloseElevated))
	assert.Equal(t, []Role{RoleAuditor, RoleComplianceOfficer}, RolesGranting(CapConfirmCompliance))

	actor := Actor{Roles: []Role{RoleComplianceOfficer}}
	assert.True(t, actor.CanAny(CapSubmit, CapRespond))
	assert.False(t, actor.CanAny(CapSubmit, CapReview))
}
