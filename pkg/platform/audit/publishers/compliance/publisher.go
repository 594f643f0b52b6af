// Package compliance provides a fail-closed audit publisher for governance
// decisions.
//
// Events are written to the outbox in the caller's transaction and the caller
// blocks until the write succeeds. If the write fails an error is returned and
// the calling operation must fail with it.
package compliance

import (
	"context"
	"log/slog"
	"time"

	dErrors "auditgov/pkg/domain-errors"
	audit "auditgov/pkg/platform/audit"
)

// Publisher emits compliance events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// New creates a compliance publisher.
// The store must be outbox-backed for guaranteed delivery.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes a compliance event to the audit store.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	start := time.Now()

	if event.ActorID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "compliance event requires actor")
	}
	if event.ObservationID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "compliance event requires observation")
	}
	if event.Action == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "compliance event requires action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.incPersistFailures()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
				"action", event.Action,
				"observation_id", event.ObservationID,
				"actor_id", event.ActorID,
				"error", err,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "compliance audit persistence failed")
	}

	p.metrics.observePersistDuration(time.Since(start).Seconds())
	p.metrics.incEventsEmitted(string(event.Action))
	return nil
}

// Close is a no-op for the synchronous compliance publisher.
func (p *Publisher) Close() error {
	return nil
}
