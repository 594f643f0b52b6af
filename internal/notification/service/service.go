// Package service is the enqueue side of the notification dispatcher.
// Lifecycle events call Enqueue; scheduled scans call EnqueueReminder, which
// applies the per-day duplicate check first.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"auditgov/internal/notification/metrics"
	"auditgov/internal/notification/models"
	"auditgov/internal/notification/store"
	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/platform/sentinel"
	"auditgov/pkg/requestcontext"
)

// dedupeTTL outlives a calendar day so a key set just after midnight UTC
// still covers the whole day.
const dedupeTTL = 25 * time.Hour

type Service struct {
	store       store.Store
	guard       store.DedupeGuard
	batchWindow time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDedupeGuard adds a fast-path duplicate check in front of the store.
func WithDedupeGuard(g store.DedupeGuard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

func WithBatchWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.batchWindow = d
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

const tracerName = "auditgov/notification/service"

func New(st store.Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("notification store is required")
	}
	s := &Service{
		store:       st,
		batchWindow: models.DefaultBatchWindow,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enqueue writes a pending intent. Batched intents wait out the batching
// window so others sharing the key can join them.
func (s *Service) Enqueue(ctx context.Context, req models.EnqueueRequest) (*models.Intent, error) {
	ctx, span := s.tracer.Start(ctx, "notification.Enqueue",
		trace.WithAttributes(attribute.String("notification.type", string(req.Type))))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	intent := s.newIntent(ctx, req)
	if err := s.store.Create(ctx, intent); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue notification")
	}
	s.metrics.IncEnqueued(string(intent.Type))
	s.logger.DebugContext(ctx, "notification enqueued",
		"intent_id", intent.ID.String(),
		"tenant_id", intent.TenantID.String(),
		"type", string(intent.Type),
		"batch_key", intent.BatchKey,
		"send_after", intent.SendAfter,
	)
	return intent, nil
}

// EnqueueReminder enqueues a scheduled intent unless one with the same
// tenant, type and observation already exists for the current UTC day.
// It reports whether a new intent was written.
func (s *Service) EnqueueReminder(ctx context.Context, req models.EnqueueRequest) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "notification.EnqueueReminder",
		trace.WithAttributes(attribute.String("notification.type", string(req.Type))))
	defer span.End()

	if err := req.Validate(); err != nil {
		return false, err
	}
	if !req.Type.IsScheduled() {
		return false, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s is not a scheduled notification type", req.Type))
	}

	intent := s.newIntent(ctx, req)
	intent.DedupeDay = models.DayOf(requestcontext.Now(ctx))
	key := DedupeKey(intent.TenantID, intent.Type, intent.Payload.ObservationID, intent.DedupeDay)

	acquired := false
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, key, dedupeTTL)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "dedupe guard unavailable, falling back to store",
				"key", key,
				"error", err,
			)
		case !ok:
			s.metrics.IncDeduplicated(string(intent.Type), "guard")
			return false, nil
		default:
			acquired = true
		}
	}

	if err := s.store.Create(ctx, intent); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			s.metrics.IncDeduplicated(string(intent.Type), "store")
			return false, nil
		}
		if acquired {
			if relErr := s.guard.Release(ctx, key); relErr != nil {
				s.logger.WarnContext(ctx, "failed to release dedupe key", "key", key, "error", relErr)
			}
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue reminder")
	}
	s.metrics.IncEnqueued(string(intent.Type))
	return true, nil
}

func (s *Service) newIntent(ctx context.Context, req models.EnqueueRequest) *models.Intent {
	now := requestcontext.Now(ctx)
	sendAfter := now
	if req.BatchKey != "" {
		sendAfter = now.Add(s.batchWindow)
	}
	return &models.Intent{
		ID:          id.NewIntentID(),
		TenantID:    req.TenantID,
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Payload:     req.Payload,
		Status:      models.StatusPending,
		SendAfter:   sendAfter,
		BatchKey:    req.BatchKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DedupeKey identifies a scheduled intent within one calendar day.
func DedupeKey(tenant id.TenantID, typ models.Type, obsID id.ObservationID, day string) string {
	return tenant.String() + ":" + string(typ) + ":" + obsID.String() + ":" + day
}
