package adapters

import (
	"context"

	"auditgov/internal/notification/scanner"
	obsModels "auditgov/internal/observation/models"
)

// ObservationLister is the slice of the observation store the scans read.
type ObservationLister interface {
	ListOpenWithAssignee(ctx context.Context) ([]*obsModels.Observation, error)
}

// ObservationSource adapts the observation store to scanner.Source.
type ObservationSource struct {
	store ObservationLister
}

// NewObservationSource creates a new adapter wrapping an observation store.
func NewObservationSource(store ObservationLister) *ObservationSource {
	return &ObservationSource{store: store}
}

// ListOpenAssigned returns open assigned Observations mapped to scan items.
func (a *ObservationSource) ListOpenAssigned(ctx context.Context) ([]scanner.Item, error) {
	observations, err := a.store.ListOpenWithAssignee(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]scanner.Item, 0, len(observations))
	for _, obs := range observations {
		if !obs.Status.IsOpen() || obs.AssigneeID.IsNil() || obs.ResolvedDuringFieldwork {
			continue
		}
		items = append(items, mapObservation(obs))
	}
	return items, nil
}

func mapObservation(obs *obsModels.Observation) scanner.Item {
	return scanner.Item{
		ObservationID: obs.ID,
		TenantID:      obs.TenantID,
		Title:         obs.Title,
		Severity:      string(obs.Severity),
		Status:        string(obs.Status),
		AssigneeID:    obs.AssigneeID,
		CreatorID:     obs.CreatedBy,
		DueDate:       obs.DueDate,
	}
}
