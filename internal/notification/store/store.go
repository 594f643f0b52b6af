// Package store defines the durable notification queue. Implementations
// live in the memory and postgres subpackages; redis holds the optional
// dedupe fast path.
package store

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store,DedupeGuard

import (
	"context"
	"time"

	"auditgov/internal/notification/models"
	id "auditgov/pkg/domain"
)

// Store is the intent queue. Errors are pkg/platform/sentinel values.
type Store interface {
	// Create inserts a pending intent. An intent with a DedupeDay that
	// collides with an existing (tenant, type, observation, day) returns
	// sentinel.ErrAlreadyExists and writes nothing.
	Create(ctx context.Context, intent *models.Intent) error
	FindByID(ctx context.Context, intentID id.IntentID) (*models.Intent, error)

	// ClaimDue moves up to limit pending intents with send_after <= now to
	// processing, oldest first, and returns them. Concurrent callers never
	// receive the same intent.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Intent, error)
	// MarkSent records delivery and links every listed intent to it.
	MarkSent(ctx context.Context, delivery *models.DeliveryLog, intentIDs []id.IntentID) error
	// MarkRetry returns a processing intent to pending.
	MarkRetry(ctx context.Context, intentID id.IntentID, retryCount int, sendAfter time.Time, lastErr string, now time.Time) error
	MarkFailed(ctx context.Context, intentID id.IntentID, retryCount int, lastErr string, now time.Time) error
	// ReclaimStale returns processing intents claimed before claimedBefore
	// to pending without touching their retry counters.
	ReclaimStale(ctx context.Context, claimedBefore, now time.Time) (int, error)
}

// DedupeGuard is a best-effort fast path in front of Store's unique key.
type DedupeGuard interface {
	// Acquire returns false when key was already taken within ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
