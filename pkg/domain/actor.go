package domain

import (
	"slices"
	"strings"

	dErrors "auditgov/pkg/domain-errors"
	pstrings "auditgov/pkg/platform/strings"
)

// Role is a role tag carried by the authenticated actor.
type Role string

const (
	RoleAuditor             Role = "auditor"
	RoleAuditManager        Role = "audit_manager"
	RoleChiefAuditExecutive Role = "chief_audit_executive"
	RoleComplianceOfficer   Role = "compliance_officer"
	RoleAuditee             Role = "auditee"
)

// Capability is a unit of permission granted by one or more roles.
type Capability string

const (
	CapCreate            Capability = "create"
	CapSubmit            Capability = "submit"
	CapReview            Capability = "review"
	CapConfirmCompliance Capability = "confirm_compliance"
	CapCloseStandard     Capability = "close_standard"
	CapCloseElevated     Capability = "close_elevated"
	CapRespond           Capability = "respond"
	CapManageRepeat      Capability = "manage_repeat"
	CapResolveFieldwork  Capability = "resolve_fieldwork"
)

// roleCapabilities is the single source of truth for role -> capability.
var roleCapabilities = map[Role][]Capability{
	RoleAuditor: {
		CapCreate, CapSubmit, CapConfirmCompliance, CapManageRepeat, CapResolveFieldwork,
	},
	RoleAuditManager: {
		CapReview, CapCloseStandard, CapManageRepeat, CapResolveFieldwork,
	},
	RoleChiefAuditExecutive: {
		CapReview, CapCloseStandard, CapCloseElevated, CapManageRepeat, CapResolveFieldwork,
	},
	RoleComplianceOfficer: {
		CapConfirmCompliance, CapRespond,
	},
	RoleAuditee: {
		CapRespond,
	},
}

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Grants reports whether the role carries the capability.
func (r Role) Grants(c Capability) bool {
	return slices.Contains(roleCapabilities[r], c)
}

// ParseRoles normalizes raw role tags from an identity token. Unknown tags
// are rejected so a typo never silently downgrades to "no roles".
func ParseRoles(raw []string) ([]Role, error) {
	tags := pstrings.NormalizeTags(raw)
	roles := make([]Role, 0, len(tags))
	for _, tag := range tags {
		role := Role(tag)
		if !role.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown role: "+tag)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// Actor is the authenticated caller. It is supplied by the identity layer
// and trusted as-is; tenant scope is never derived from request input.
type Actor struct {
	ID        ActorID
	TenantID  TenantID
	SessionID SessionID
	Roles     []Role
}

// Can reports whether any of the actor's roles grants the capability.
func (a Actor) Can(c Capability) bool {
	for _, r := range a.Roles {
		if r.Grants(c) {
			return true
		}
	}
	return false
}

// HasRole reports whether the actor carries the role tag.
func (a Actor) HasRole(role Role) bool {
	return slices.Contains(a.Roles, role)
}

// IsAuditeeOnly is true when every role the actor holds is auditee.
func (a Actor) IsAuditeeOnly() bool {
	if len(a.Roles) == 0 {
		return false
	}
	for _, r := range a.Roles {
		if r != RoleAuditee {
			return false
		}
	}
	return true
}

// Validate checks that the actor context is usable for a governance call.
func (a Actor) Validate() error {
	if a.ID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "actor id is required")
	}
	if a.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "tenant id is required")
	}
	return nil
}

// RoleNames renders the roles for logs and audit records.
func (a Actor) RoleNames() string {
	names := make([]string, len(a.Roles))
	for i, r := range a.Roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

// CanAny reports whether the actor holds at least one of the capabilities.
func (a Actor) CanAny(caps ...Capability) bool {
	for _, c := range caps {
		if a.Can(c) {
			return true
		}
	}
	return false
}

// RolesGranting lists, in a stable order, the roles that carry any of caps.
func RolesGranting(caps ...Capability) []Role {
	ordered := []Role{RoleAuditor, RoleAuditManager, RoleChiefAuditExecutive, RoleComplianceOfficer, RoleAuditee}
	var out []Role
	for _, r := range ordered {
		for _, c := range caps {
			if r.Grants(c) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
