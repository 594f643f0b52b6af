// Package store defines the persistence contract for Observations, their
// timeline ledger and auditee responses. Implementations live in the memory
// and postgres subpackages.
package store

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store,Tx

import (
	"context"
	"time"

	"auditgov/internal/observation/models"
	id "auditgov/pkg/domain"
)

// Store persists Observation aggregates. Every read and write is scoped by
// tenant. Errors are pkg/platform/sentinel values for callers to translate.
type Store interface {
	Create(ctx context.Context, obs *models.Observation) error
	// FindByID returns sentinel.ErrNotFound when absent in the tenant.
	FindByID(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) (*models.Observation, error)
	// UpdateIfVersion writes obs only while the stored version equals
	// expectedVersion; otherwise it returns sentinel.ErrConflict and writes
	// nothing. obs.Version must already be expectedVersion+1.
	UpdateIfVersion(ctx context.Context, obs *models.Observation, expectedVersion int) error
	// IncrementEvidence atomically raises evidence_count and version while
	// evidence_count < limit. Returns sentinel.ErrLimitReached at the cap.
	IncrementEvidence(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID, limit int, now time.Time) (*models.Observation, error)

	AppendTimeline(ctx context.Context, entries ...models.TimelineEntry) error
	ListTimeline(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) ([]models.TimelineEntry, error)

	CreateResponse(ctx context.Context, resp *models.AuditeeResponse) error
	ListResponses(ctx context.Context, tenantID id.TenantID, obsID id.ObservationID) ([]models.AuditeeResponse, error)

	// ListClosedInScope returns CLOSED Observations sharing branch and area.
	ListClosedInScope(ctx context.Context, tenantID id.TenantID, branchID id.BranchID, areaID id.AuditAreaID) ([]*models.Observation, error)
	CountClosedInScope(ctx context.Context, tenantID id.TenantID, branchID id.BranchID, areaID id.AuditAreaID) (int, error)

	// ListOpenWithAssignee returns ISSUED, RESPONSE and COMPLIANCE
	// Observations that have an assignee, across all tenants. Used by the
	// scheduled scans.
	ListOpenWithAssignee(ctx context.Context) ([]*models.Observation, error)
}

// Tx runs fn inside one atomic unit of work. The store handed to fn and the
// context it receives must be used for every write that belongs to it.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
