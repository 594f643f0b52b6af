package postgres

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"auditgov/internal/observation/models"
	id "auditgov/pkg/domain"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func nullableUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

// observationArgs lines up with observationColumns.
func observationArgs(obs *models.Observation) []any {
	return []any{
		uuid.UUID(obs.ID),
		uuid.UUID(obs.TenantID),
		obs.Title,
		obs.RiskCategory,
		obs.Narrative.Condition,
		obs.Narrative.Criteria,
		obs.Narrative.Cause,
		obs.Narrative.Effect,
		obs.Narrative.Recommendation,
		string(obs.Severity),
		string(obs.Status),
		obs.Version,
		nullableUUID(uuid.UUID(obs.BranchID)),
		nullableUUID(uuid.UUID(obs.AuditAreaID)),
		nullableUUID(uuid.UUID(obs.AssigneeID)),
		obs.DueDate,
		obs.ResolvedDuringFieldwork,
		obs.FieldworkReason,
		string(obs.LatestResponseType),
		obs.LatestResponseText,
		obs.LatestResponseAt,
		nullableUUID(uuid.UUID(obs.RepeatOfID)),
		obs.RepeatOccurrence,
		obs.EvidenceCount,
		uuid.UUID(obs.CreatedBy),
		obs.CreatedAt,
		obs.UpdatedAt,
		obs.StatusChangedAt,
	}
}

func scanObservation(row rowScanner) (*models.Observation, error) {
	var (
		obs                                    models.Observation
		obsID, tenantID, createdBy             uuid.UUID
		branchID, areaID, assigneeID, repeatOf uuid.NullUUID
		severity, status, responseType         string
		dueDate, responseAt                    sql.NullTime
	)
	err := row.Scan(
		&obsID, &tenantID, &obs.Title, &obs.RiskCategory,
		&obs.Narrative.Condition, &obs.Narrative.Criteria, &obs.Narrative.Cause,
		&obs.Narrative.Effect, &obs.Narrative.Recommendation,
		&severity, &status, &obs.Version,
		&branchID, &areaID, &assigneeID, &dueDate,
		&obs.ResolvedDuringFieldwork, &obs.FieldworkReason,
		&responseType, &obs.LatestResponseText, &responseAt,
		&repeatOf, &obs.RepeatOccurrence, &obs.EvidenceCount,
		&createdBy, &obs.CreatedAt, &obs.UpdatedAt, &obs.StatusChangedAt,
	)
	if err != nil {
		return nil, err
	}
	obs.ID = id.ObservationID(obsID)
	obs.TenantID = id.TenantID(tenantID)
	obs.CreatedBy = id.ActorID(createdBy)
	obs.Severity = models.Severity(severity)
	obs.Status = models.Status(status)
	obs.LatestResponseType = models.ResponseType(responseType)
	obs.BranchID = id.BranchID(branchID.UUID)
	obs.AuditAreaID = id.AuditAreaID(areaID.UUID)
	obs.AssigneeID = id.ActorID(assigneeID.UUID)
	obs.RepeatOfID = id.ObservationID(repeatOf.UUID)
	obs.DueDate = timePtr(dueDate)
	obs.LatestResponseAt = timePtr(responseAt)
	return &obs, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
