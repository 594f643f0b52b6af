package testutil

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	id "auditgov/pkg/domain"
	"auditgov/pkg/requestcontext"
)

// NewActor builds an actor in tenant holding the given roles.
func NewActor(tenant id.TenantID, roles ...id.Role) id.Actor {
	return id.Actor{
		ID:        id.ActorID(uuid.New()),
		TenantID:  tenant,
		SessionID: id.SessionID(uuid.New()),
		Roles:     roles,
	}
}

// NewTenant returns a fresh random tenant ID.
func NewTenant() id.TenantID {
	return id.TenantID(uuid.New())
}

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), key, value))
}
