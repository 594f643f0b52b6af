package adapters

import (
	"context"

	notifyModels "auditgov/internal/notification/models"
	"auditgov/internal/observation/models"
)

// Enqueuer is the lifecycle side of the notification service.
type Enqueuer interface {
	Enqueue(ctx context.Context, req notifyModels.EnqueueRequest) (*notifyModels.Intent, error)
}

// NotifierAdapter turns Observation lifecycle events into notification
// intents.
type NotifierAdapter struct {
	enqueuer Enqueuer
}

// NewNotifierAdapter creates a new adapter wrapping the notification service.
func NewNotifierAdapter(enqueuer Enqueuer) *NotifierAdapter {
	return &NotifierAdapter{enqueuer: enqueuer}
}

// ObservationIssued notifies the assignee. Observations without an
// assignee have nobody to tell.
func (a *NotifierAdapter) ObservationIssued(ctx context.Context, obs *models.Observation) error {
	if obs.AssigneeID.IsNil() {
		return nil
	}
	_, err := a.enqueuer.Enqueue(ctx, notifyModels.EnqueueRequest{
		TenantID:    obs.TenantID,
		RecipientID: obs.AssigneeID,
		Type:        notifyModels.TypeAssignment,
		Payload:     payloadOf(obs),
	})
	return err
}

// ResponseReceived notifies the creator. Responses to one creator inside
// the batching window are delivered as one message.
func (a *NotifierAdapter) ResponseReceived(ctx context.Context, obs *models.Observation, resp *models.AuditeeResponse) error {
	payload := payloadOf(obs)
	payload.ResponseType = string(resp.Type)
	_, err := a.enqueuer.Enqueue(ctx, notifyModels.EnqueueRequest{
		TenantID:    obs.TenantID,
		RecipientID: obs.CreatedBy,
		Type:        notifyModels.TypeResponseReceived,
		Payload:     payload,
		BatchKey:    ResponseBatchKey(obs),
	})
	return err
}

// ResponseBatchKey groups response notifications per creator.
func ResponseBatchKey(obs *models.Observation) string {
	return "responses:" + obs.CreatedBy.String()
}

func payloadOf(obs *models.Observation) notifyModels.Payload {
	return notifyModels.Payload{
		ObservationID: obs.ID,
		Title:         obs.Title,
		Severity:      string(obs.Severity),
		Status:        string(obs.Status),
		DueDate:       obs.DueDate,
	}
}
