// Package scanner produces scheduled notification intents: deadline
// reminders, overdue escalations and the weekly digest. Every intent goes
// through the per-day duplicate check, so a scan can run as often as needed.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"auditgov/internal/notification/metrics"
	"auditgov/internal/notification/models"
	id "auditgov/pkg/domain"
	"auditgov/pkg/requestcontext"
)

// Item is an open, assigned Observation as the scans see it.
type Item struct {
	ObservationID id.ObservationID
	TenantID      id.TenantID
	Title         string
	Severity      string
	Status        string
	AssigneeID    id.ActorID
	CreatorID     id.ActorID
	DueDate       *time.Time
}

// Source lists open Observations that have an assignee, across tenants.
type Source interface {
	ListOpenAssigned(ctx context.Context) ([]Item, error)
}

// Enqueuer is the reminder side of the notification service.
type Enqueuer interface {
	EnqueueReminder(ctx context.Context, req models.EnqueueRequest) (bool, error)
}

type Scanner struct {
	source        Source
	enqueuer      Enqueuer
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	digestWeekday time.Weekday
	interval      time.Duration
	now           func() time.Time
}

type Option func(*Scanner)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scanner) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithDigestWeekday sets the day the weekly digest goes out. Monday by
// default.
func WithDigestWeekday(d time.Weekday) Option {
	return func(s *Scanner) {
		s.digestWeekday = d
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

const tracerName = "auditgov/notification/scanner"

func New(source Source, enqueuer Enqueuer, opts ...Option) (*Scanner, error) {
	if source == nil {
		return nil, errors.New("scan source is required")
	}
	if enqueuer == nil {
		return nil, errors.New("enqueuer is required")
	}
	s := &Scanner{
		source:        source,
		enqueuer:      enqueuer,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
		digestWeekday: time.Monday,
		interval:      time.Hour,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Result counts intents written and skipped as duplicates per producer.
type Result struct {
	Reminders   int
	Escalations int
	Digests     int
	Duplicates  int
}

func (r Result) Total() int {
	return r.Reminders + r.Escalations + r.Digests
}

type counters struct {
	reminders   atomic.Int64
	escalations atomic.Int64
	digests     atomic.Int64
	duplicates  atomic.Int64
}

// Run scans once immediately and then on every interval until ctx ends.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if res, err := s.Scan(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "notification scan failed", "error", err)
		} else if res.Total() > 0 {
			s.logger.InfoContext(ctx, "notification scan enqueued intents",
				"reminders", res.Reminders,
				"escalations", res.Escalations,
				"digests", res.Digests,
				"duplicates", res.Duplicates,
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scan runs the three producers concurrently against one snapshot of open
// Observations. A failure in one producer does not stop the others.
func (s *Scanner) Scan(ctx context.Context, now time.Time) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "notification.Scan")
	defer span.End()
	ctx = requestcontext.WithTime(ctx, now)

	items, err := s.source.ListOpenAssigned(ctx)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("list open observations: %w", err)
	}
	span.SetAttributes(attribute.Int("scan.items", len(items)))

	var c counters
	producers := []struct {
		name string
		run  func(context.Context, time.Time, []Item, *counters) error
	}{
		{"deadline", s.deadlineReminders},
		{"overdue", s.overdueEscalations},
		{"digest", s.weeklyDigest},
	}

	errs := make([]error, len(producers))
	var g errgroup.Group
	for i, p := range producers {
		g.Go(func() error {
			start := time.Now()
			defer s.metrics.ObserveScan(p.name, start)
			if err := p.run(ctx, now, items, &c); err != nil {
				errs[i] = fmt.Errorf("%s scan: %w", p.name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Reminders:   int(c.reminders.Load()),
		Escalations: int(c.escalations.Load()),
		Digests:     int(c.digests.Load()),
		Duplicates:  int(c.duplicates.Load()),
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return res, err
	}
	return res, nil
}

func (s *Scanner) deadlineReminders(ctx context.Context, now time.Time, items []Item, c *counters) error {
	var errs []error
	for _, item := range items {
		if item.DueDate == nil || item.AssigneeID.IsNil() {
			continue
		}
		days := DaysBetween(now, *item.DueDate)
		typ, ok := models.DeadlineReminderFor(days)
		if !ok {
			continue
		}
		payload := payloadOf(item)
		payload.DaysRemaining = days
		if err := s.enqueue(ctx, item, item.AssigneeID, typ, payload, "", &c.reminders, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scanner) overdueEscalations(ctx context.Context, now time.Time, items []Item, c *counters) error {
	var errs []error
	for _, item := range items {
		if item.DueDate == nil || item.CreatorID.IsNil() {
			continue
		}
		days := DaysBetween(now, *item.DueDate)
		if days >= 0 {
			continue
		}
		payload := payloadOf(item)
		payload.DaysOverdue = -days
		if err := s.enqueue(ctx, item, item.CreatorID, models.TypeOverdueEscalation, payload, "", &c.escalations, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scanner) weeklyDigest(ctx context.Context, now time.Time, items []Item, c *counters) error {
	if now.UTC().Weekday() != s.digestWeekday {
		return nil
	}
	week := ISOWeek(now)
	var errs []error
	for _, item := range items {
		if item.AssigneeID.IsNil() {
			continue
		}
		key := DigestBatchKey(item.TenantID, item.AssigneeID, week)
		if err := s.enqueue(ctx, item, item.AssigneeID, models.TypeWeeklyDigest, payloadOf(item), key, &c.digests, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scanner) enqueue(ctx context.Context, item Item, recipient id.ActorID, typ models.Type, payload models.Payload, batchKey string, written *atomic.Int64, c *counters) error {
	created, err := s.enqueuer.EnqueueReminder(ctx, models.EnqueueRequest{
		TenantID:    item.TenantID,
		RecipientID: recipient,
		Type:        typ,
		Payload:     payload,
		BatchKey:    batchKey,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "scheduled notification not enqueued",
			"observation_id", item.ObservationID.String(),
			"type", string(typ),
			"error", err,
		)
		return fmt.Errorf("%s for observation %s: %w", typ, item.ObservationID, err)
	}
	if created {
		written.Add(1)
	} else {
		c.duplicates.Add(1)
	}
	return nil
}

func payloadOf(item Item) models.Payload {
	return models.Payload{
		ObservationID: item.ObservationID,
		Title:         item.Title,
		Severity:      item.Severity,
		Status:        item.Status,
		DueDate:       item.DueDate,
	}
}

// DaysBetween counts UTC calendar days from now until due. Negative when
// due is in the past.
func DaysBetween(now, due time.Time) int {
	from := truncateDay(now)
	to := truncateDay(due)
	return int(to.Sub(from).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ISOWeek renders the ISO 8601 week of t, e.g. "2026-W41".
func ISOWeek(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// DigestBatchKey groups one assignee's digest items for a week.
func DigestBatchKey(tenant id.TenantID, assignee id.ActorID, week string) string {
	return "digest:" + tenant.String() + ":" + assignee.String() + ":" + week
}

// ParseWeekday accepts English day names in any case.
func ParseWeekday(raw string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(raw)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", raw)
}
