// Package worker is the delivery side of the notification dispatcher. Each
// tick reclaims expired claims, claims due intents, partitions them into
// individual and batched groups and delivers each group once.
package worker

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"auditgov/internal/notification/metrics"
	"auditgov/internal/notification/models"
	"auditgov/internal/notification/render"
	"auditgov/internal/notification/store"
	"auditgov/pkg/attrs"
	id "auditgov/pkg/domain"
	"auditgov/pkg/platform/audit"
)

// Renderer turns intents into message content.
type Renderer interface {
	Render(intent *models.Intent) (render.Content, error)
	RenderBatch(intents []*models.Intent) (models.Type, render.Content, error)
}

// Sender delivers one message. Errors are retryable.
type Sender interface {
	Send(ctx context.Context, msg models.Message) error
}

const (
	defaultPollInterval   = 15 * time.Second
	defaultBatchSize      = 50
	defaultAttemptTimeout = 10 * time.Second
	defaultLeaseTimeout   = 10 * time.Minute
	defaultConcurrency    = 4
)

type Worker struct {
	store          store.Store
	renderer       Renderer
	sender         Sender
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	pollInterval   time.Duration
	batchSize      int
	attemptTimeout time.Duration
	leaseTimeout   time.Duration
	concurrency    int
	now            func() time.Time
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(w *Worker) {
		w.tracer = tp.Tracer(tracerName)
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithAttemptTimeout bounds each send. A timed-out send counts as a failed
// attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.attemptTimeout = d
		}
	}
}

// WithLeaseTimeout sets how long a claim may stay in processing before it
// is reclaimed. It must comfortably exceed the attempt timeout.
func WithLeaseTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.leaseTimeout = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

const tracerName = "auditgov/notification/worker"

func New(st store.Store, renderer Renderer, sender Sender, opts ...Option) (*Worker, error) {
	if st == nil {
		return nil, errors.New("notification store is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	w := &Worker{
		store:          st,
		renderer:       renderer,
		sender:         sender,
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		attemptTimeout: defaultAttemptTimeout,
		leaseTimeout:   defaultLeaseTimeout,
		concurrency:    defaultConcurrency,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.leaseTimeout <= w.attemptTimeout {
		return nil, fmt.Errorf("lease timeout %s must exceed attempt timeout %s", w.leaseTimeout, w.attemptTimeout)
	}
	return w, nil
}

// Result summarises one tick.
type Result struct {
	Reclaimed  int
	Claimed    int
	Deliveries int
	Sent       int
	Retried    int
	Failed     int
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "notification worker started",
		"poll_interval", w.pollInterval.String(),
		"batch_size", w.batchSize,
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "notification tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "notification worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce runs a single tick.
func (w *Worker) ProcessOnce(ctx context.Context) (Result, error) {
	ctx, span := w.tracer.Start(ctx, "notification.ProcessOnce")
	defer span.End()

	var res Result
	now := w.now()

	reclaimed, err := w.store.ReclaimStale(ctx, now.Add(-w.leaseTimeout), now)
	if err != nil {
		return res, w.fail(span, fmt.Errorf("reclaim stale intents: %w", err))
	}
	if reclaimed > 0 {
		res.Reclaimed = reclaimed
		w.metrics.AddReclaimed(reclaimed)
		w.logger.WarnContext(ctx, "reclaimed notification intents with expired claims", "count", reclaimed)
	}

	intents, err := w.store.ClaimDue(ctx, now, w.batchSize)
	if err != nil {
		return res, w.fail(span, fmt.Errorf("claim due intents: %w", err))
	}
	res.Claimed = len(intents)
	w.metrics.AddClaimed(len(intents))
	span.SetAttributes(attribute.Int("notification.claimed", len(intents)))
	if len(intents) == 0 {
		return res, nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, group := range Partition(intents) {
		g.Go(func() error {
			out, err := w.deliver(ctx, group)
			mu.Lock()
			defer mu.Unlock()
			res.Deliveries++
			res.Sent += out.Sent
			res.Retried += out.Retried
			res.Failed += out.Failed
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return res, w.fail(span, err)
	}
	return res, nil
}

// Group is a set of intents delivered as one message.
type Group struct {
	Key     string
	Intents []*models.Intent
}

// Partition splits claimed intents into individually addressed groups of
// one and batches keyed by (tenant, recipient, batch key). Order of first
// appearance is kept.
func Partition(intents []*models.Intent) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, intent := range intents {
		if !intent.IsBatched() {
			groups = append(groups, Group{Key: intent.ID.String(), Intents: []*models.Intent{intent}})
			continue
		}
		key := intent.TenantID.String() + "|" + intent.RecipientID.String() + "|" + intent.BatchKey
		if i, ok := index[key]; ok {
			groups[i].Intents = append(groups[i].Intents, intent)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, Group{Key: key, Intents: []*models.Intent{intent}})
	}
	return groups
}

func (w *Worker) deliver(ctx context.Context, group Group) (Result, error) {
	first := group.Intents[0]
	ctx, span := w.tracer.Start(ctx, "notification.deliver", trace.WithAttributes(
		attribute.String("notification.type", string(first.Type)),
		attribute.Int("notification.intents", len(group.Intents)),
	))
	defer span.End()

	typ, content, err := w.render(group)
	if err != nil {
		return w.failAll(ctx, group, err)
	}

	msg := models.Message{
		IntentIDs:   intentIDs(group.Intents),
		TenantID:    first.TenantID,
		RecipientID: first.RecipientID,
		Type:        typ,
		Subject:     content.Subject,
		Body:        content.Body,
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, w.attemptTimeout)
	err = w.sender.Send(attemptCtx, msg)
	cancel()

	if err != nil {
		w.metrics.ObserveDelivery(string(typ), outcomeOf(err), len(group.Intents), start)
		span.RecordError(err)
		return w.retryAll(ctx, group, err)
	}
	w.metrics.ObserveDelivery(string(typ), "sent", len(group.Intents), start)

	delivery := &models.DeliveryLog{
		ID:          id.NewDeliveryID(),
		TenantID:    first.TenantID,
		RecipientID: first.RecipientID,
		Type:        typ,
		Subject:     content.Subject,
		ContentHash: ContentHash(content),
		IntentCount: len(group.Intents),
		DeliveredAt: w.now(),
	}
	if err := w.store.MarkSent(ctx, delivery, msg.IntentIDs); err != nil {
		// The message went out; the claim expires and the intents are
		// delivered again after the lease.
		return Result{}, w.fail(span, fmt.Errorf("record delivery %s: %w", delivery.ID, err))
	}
	w.logger.InfoContext(ctx, "notification sent",
		"delivery_id", delivery.ID.String(),
		"tenant_id", first.TenantID.String(),
		"type", string(typ),
		"intents", len(group.Intents),
	)
	return Result{Sent: len(group.Intents)}, nil
}

func (w *Worker) render(group Group) (models.Type, render.Content, error) {
	if len(group.Intents) == 1 && !group.Intents[0].IsBatched() {
		c, err := w.renderer.Render(group.Intents[0])
		return group.Intents[0].Type, c, err
	}
	return w.renderer.RenderBatch(group.Intents)
}

// retryAll advances every intent in the group by one failed attempt.
func (w *Worker) retryAll(ctx context.Context, group Group, cause error) (Result, error) {
	var (
		res  Result
		errs []error
	)
	now := w.now()
	for _, intent := range group.Intents {
		status, sendAfter := intent.NextAttempt(now)
		retries := intent.RetryCount + 1
		if status == models.StatusFailed {
			if err := w.store.MarkFailed(ctx, intent.ID, retries, cause.Error(), now); err != nil {
				errs = append(errs, fmt.Errorf("mark intent %s failed: %w", intent.ID, err))
				continue
			}
			res.Failed++
			w.exhausted(ctx, intent, retries, cause)
			continue
		}
		if err := w.store.MarkRetry(ctx, intent.ID, retries, sendAfter, cause.Error(), now); err != nil {
			errs = append(errs, fmt.Errorf("reschedule intent %s: %w", intent.ID, err))
			continue
		}
		res.Retried++
		w.metrics.IncRetry(string(intent.Type))
		w.logger.WarnContext(ctx, "notification delivery failed, rescheduled",
			"intent_id", intent.ID.String(),
			"type", string(intent.Type),
			"retry_count", retries,
			"send_after", sendAfter,
			"error", cause,
		)
	}
	return res, errors.Join(errs...)
}

// failAll marks every intent failed without spending further attempts.
func (w *Worker) failAll(ctx context.Context, group Group, cause error) (Result, error) {
	var (
		res  Result
		errs []error
	)
	now := w.now()
	for _, intent := range group.Intents {
		if err := w.store.MarkFailed(ctx, intent.ID, intent.RetryCount, cause.Error(), now); err != nil {
			errs = append(errs, fmt.Errorf("mark intent %s failed: %w", intent.ID, err))
			continue
		}
		res.Failed++
		w.exhausted(ctx, intent, intent.RetryCount, cause)
	}
	return res, errors.Join(errs...)
}

func (w *Worker) exhausted(ctx context.Context, intent *models.Intent, retries int, cause error) {
	w.metrics.IncPermanentFailure(string(intent.Type))
	w.logger.ErrorContext(ctx, "notification permanently failed", attrs.Audit(ctx, string(audit.EventNotificationFailed),
		"intent_id", intent.ID.String(),
		"tenant_id", intent.TenantID.String(),
		"observation_id", intent.Payload.ObservationID.String(),
		"type", string(intent.Type),
		"retry_count", retries,
		"last_error", cause.Error(),
	)...)
}

func (w *Worker) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func outcomeOf(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

// ContentHash fingerprints a delivered message for the delivery log.
func ContentHash(c render.Content) string {
	sum := blake2b.Sum256([]byte(c.Subject + "\n" + c.Body))
	return hex.EncodeToString(sum[:])
}

func intentIDs(intents []*models.Intent) []id.IntentID {
	out := make([]id.IntentID, len(intents))
	for i, intent := range intents {
		out[i] = intent.ID
	}
	return out
}
