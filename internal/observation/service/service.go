// Package service is the Transition Engine and the lifecycle operations
// around it. Every mutation runs in one unit of work that writes the
// Observation, its timeline entries and its compliance record together;
// notifications are handed off after commit and never affect the outcome.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AuditPublisher,Notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"auditgov/internal/observation/metrics"
	"auditgov/internal/observation/models"
	"auditgov/internal/observation/store"
	"auditgov/pkg/attrs"
	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/platform/audit"
	"auditgov/pkg/platform/sentinel"
	"auditgov/pkg/requestcontext"
)

// AuditPublisher records compliance events inside the caller's transaction.
// It must fail closed: an error aborts the unit of work.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Notifier hands lifecycle events to the notification dispatcher.
type Notifier interface {
	ObservationIssued(ctx context.Context, obs *models.Observation) error
	ResponseReceived(ctx context.Context, obs *models.Observation, resp *models.AuditeeResponse) error
}

// Service orchestrates Observation lifecycle operations.
type Service struct {
	store    store.Store
	tx       store.Tx
	auditor  AuditPublisher
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
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

// WithNotifier enables post-commit notification hand-off.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

const tracerName = "auditgov/observation/service"

func New(st store.Store, tx store.Tx, auditor AuditPublisher, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("observation store is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if auditor == nil {
		return nil, errors.New("audit publisher is required")
	}
	s := &Service{
		store:   st,
		tx:      tx,
		auditor: auditor,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create drafts a new Observation at version 1.
func (s *Service) Create(ctx context.Context, actor id.Actor, cmd models.CreateObservationCommand) (*models.Observation, error) {
	ctx, span := s.tracer.Start(ctx, "observation.Create")
	defer span.End()
	defer s.metrics.ObserveDuration("create", time.Now())

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.Can(id.CapCreate) {
		return nil, forbiddenFor("creating an observation", id.CapCreate)
	}

	now := requestcontext.Now(ctx)
	obs, err := models.NewObservation(id.NewObservationID(), actor.TenantID, actor.ID, cmd, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		if err := st.Create(ctx, obs); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return dErrors.New(dErrors.CodeConflict, "observation already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create observation")
		}
		entry := models.NewTimelineEntry(obs, models.EventCreated, actor.ID, "", string(obs.Status), "", now)
		if err := appendTimeline(ctx, st, entry); err != nil {
			return err
		}
		return s.emitAudit(ctx, actor, obs, audit.EventObservationCreated, func(e *audit.ComplianceEvent) {
			e.ToStatus = string(obs.Status)
		})
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	span.SetAttributes(attribute.String("observation_id", obs.ID.String()))
	s.logAudit(ctx, string(audit.EventObservationCreated),
		"observation_id", obs.ID.String(),
		"tenant_id", obs.TenantID.String(),
		"actor_id", actor.ID.String(),
		"severity", string(obs.Severity),
	)
	return obs, nil
}

// Get returns an Observation the actor may see.
func (s *Service) Get(ctx context.Context, actor id.Actor, obsID id.ObservationID) (*models.Observation, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return loadVisible(ctx, s.store, actor, obsID)
}

// ListTimeline returns the ledger in creation order.
func (s *Service) ListTimeline(ctx context.Context, actor id.Actor, obsID id.ObservationID) ([]models.TimelineEntry, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := loadVisible(ctx, s.store, actor, obsID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListTimeline(ctx, actor.TenantID, obsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load timeline")
	}
	return entries, nil
}

func (s *Service) ListResponses(ctx context.Context, actor id.Actor, obsID id.ObservationID) ([]models.AuditeeResponse, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := loadVisible(ctx, s.store, actor, obsID); err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, actor.TenantID, obsID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load responses")
	}
	return responses, nil
}

// RequestTransition moves an Observation along one edge of the lifecycle.
// Checks run in order: input, visibility (NotFound), edge and role rules
// (Forbidden), version (Conflict). Nothing is written unless all pass.
func (s *Service) RequestTransition(ctx context.Context, actor id.Actor, obsID id.ObservationID, target models.Status, comment string, expectedVersion int) (models.Status, error) {
	ctx, span := s.tracer.Start(ctx, "observation.RequestTransition", trace.WithAttributes(
		attribute.String("observation_id", obsID.String()),
		attribute.String("target_status", string(target)),
	))
	defer span.End()
	defer s.metrics.ObserveDuration("transition", time.Now())

	if err := actor.Validate(); err != nil {
		return "", err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return "", dErrors.New(dErrors.CodeValidation, "comment is required for a status transition")
	}
	if _, err := models.ParseStatus(string(target)); err != nil {
		return "", err
	}

	var (
		from   models.Status
		issued *models.Observation
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		obs, err := loadVisible(ctx, st, actor, obsID)
		if err != nil {
			return err
		}
		from = obs.Status
		if err := models.AuthorizeTransition(actor, obs, target); err != nil {
			return err
		}
		if err := checkVersion(obs, expectedVersion); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		obs.ApplyTransition(target, now)
		if err := updateIfVersion(ctx, st, obs, expectedVersion); err != nil {
			return err
		}
		entry := models.NewTimelineEntry(obs, models.EventStatusChanged, actor.ID, string(from), string(target), comment, now)
		if err := appendTimeline(ctx, st, entry); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, actor, obs, audit.EventObservationTransitioned, func(e *audit.ComplianceEvent) {
			e.FromStatus = string(from)
			e.ToStatus = string(target)
			e.Justification = comment
		}); err != nil {
			return err
		}
		if target == models.StatusIssued && !obs.AssigneeID.IsNil() {
			issued = obs
		}
		return nil
	})
	if err != nil {
		s.recordTransitionFailure(from, target, err)
		return "", s.fail(span, err)
	}

	s.metrics.ObserveTransition(string(from), string(target), "success")
	s.logAudit(ctx, string(audit.EventObservationTransitioned),
		"observation_id", obsID.String(),
		"actor_id", actor.ID.String(),
		"from_status", string(from),
		"to_status", string(target),
	)
	if issued != nil {
		s.notify(ctx, "assignment", func(ctx context.Context) error {
			return s.notifier.ObservationIssued(ctx, issued)
		})
	}
	return target, nil
}

// ResolveDuringFieldwork sets the terminal fieldwork flag on a DRAFT or
// SUBMITTED Observation. Status is left as is.
func (s *Service) ResolveDuringFieldwork(ctx context.Context, actor id.Actor, obsID id.ObservationID, reason string, expectedVersion int) (*models.Observation, error) {
	ctx, span := s.tracer.Start(ctx, "observation.ResolveDuringFieldwork", trace.WithAttributes(
		attribute.String("observation_id", obsID.String()),
	))
	defer span.End()
	defer s.metrics.ObserveDuration("resolve_fieldwork", time.Now())

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < models.MinFieldworkReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("fieldwork resolution reason must be at least %d characters", models.MinFieldworkReasonLength))
	}

	var out *models.Observation
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		obs, err := loadVisible(ctx, st, actor, obsID)
		if err != nil {
			return err
		}
		if !actor.Can(id.CapResolveFieldwork) {
			return forbiddenFor("resolving an observation during fieldwork", id.CapResolveFieldwork)
		}
		if err := obs.CanResolveDuringFieldwork(); err != nil {
			return err
		}
		if err := checkVersion(obs, expectedVersion); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		obs.ApplyFieldworkResolution(reason, now)
		if err := updateIfVersion(ctx, st, obs, expectedVersion); err != nil {
			return err
		}
		entry := models.NewTimelineEntry(obs, models.EventResolvedDuringFieldwork, actor.ID, "false", "true", reason, now)
		if err := appendTimeline(ctx, st, entry); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, actor, obs, audit.EventFieldworkResolved, func(e *audit.ComplianceEvent) {
			e.Justification = reason
			e.Decision = "resolved"
		}); err != nil {
			return err
		}
		out = obs
		return nil
	})
	if err != nil {
		s.countConflict("resolve_fieldwork", err)
		return nil, s.fail(span, err)
	}

	s.logAudit(ctx, string(audit.EventFieldworkResolved),
		"observation_id", obsID.String(),
		"actor_id", actor.ID.String(),
	)
	return out, nil
}

// SubmitResponse records an auditee reply. The first reply on an ISSUED
// Observation also moves it to RESPONSE; the whole operation advances the
// version by one.
func (s *Service) SubmitResponse(ctx context.Context, actor id.Actor, obsID id.ObservationID, respType models.ResponseType, text string, expectedVersion int) (*models.Observation, error) {
	ctx, span := s.tracer.Start(ctx, "observation.SubmitResponse", trace.WithAttributes(
		attribute.String("observation_id", obsID.String()),
		attribute.String("response_type", string(respType)),
	))
	defer span.End()
	defer s.metrics.ObserveDuration("submit_response", time.Now())

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	respType, err := models.ParseResponseType(string(respType))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "response text is required")
	}

	var (
		out  *models.Observation
		resp *models.AuditeeResponse
		from models.Status
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		obs, err := loadVisible(ctx, st, actor, obsID)
		if err != nil {
			return err
		}
		if !actor.Can(id.CapRespond) {
			return forbiddenFor("submitting an auditee response", id.CapRespond)
		}
		if obs.ResolvedDuringFieldwork || !obs.Status.AcceptsResponses() {
			return dErrors.New(dErrors.CodeForbidden,
				"responses are accepted only while an observation is ISSUED or RESPONSE, observation is "+string(obs.Status))
		}
		if err := checkVersion(obs, expectedVersion); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		resp, err = models.NewAuditeeResponse(obs, respType, text, actor.ID, now)
		if err != nil {
			return err
		}
		from = obs.Status
		auto := obs.ApplyResponse(resp, now)
		if err := updateIfVersion(ctx, st, obs, expectedVersion); err != nil {
			return err
		}
		if err := st.CreateResponse(ctx, resp); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store response")
		}

		entries := []models.TimelineEntry{
			models.NewTimelineEntry(obs, models.EventAuditeeResponse, actor.ID, "", string(resp.Type), resp.Text, now),
		}
		if auto {
			entries = append(entries, models.NewTimelineEntry(obs, models.EventStatusChanged, actor.ID,
				string(models.StatusIssued), string(models.StatusResponse), models.AutoResponseComment, now))
		}
		if err := appendTimeline(ctx, st, entries...); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, actor, obs, audit.EventResponseSubmitted, func(e *audit.ComplianceEvent) {
			e.FromStatus = string(from)
			e.ToStatus = string(obs.Status)
			e.Decision = string(resp.Type)
		}); err != nil {
			return err
		}
		out = obs
		return nil
	})
	if err != nil {
		s.countConflict("submit_response", err)
		return nil, s.fail(span, err)
	}

	if from != out.Status {
		s.metrics.ObserveTransition(string(from), string(out.Status), "success")
	}
	s.logAudit(ctx, string(audit.EventResponseSubmitted),
		"observation_id", obsID.String(),
		"actor_id", actor.ID.String(),
		"response_type", string(resp.Type),
		"status", string(out.Status),
	)
	s.notify(ctx, "response_received", func(ctx context.Context) error {
		return s.notifier.ResponseReceived(ctx, out, resp)
	})
	return out, nil
}

// evidenceCaps may attach evidence to a visible Observation.
var evidenceCaps = []id.Capability{id.CapRespond, id.CapSubmit, id.CapReview}

// CheckEvidenceCapacity is the pre-upload check. It returns how many more
// evidence files the Observation accepts.
func (s *Service) CheckEvidenceCapacity(ctx context.Context, actor id.Actor, obsID id.ObservationID) (int, error) {
	if err := actor.Validate(); err != nil {
		return 0, err
	}
	obs, err := loadVisible(ctx, s.store, actor, obsID)
	if err != nil {
		return 0, err
	}
	if !actor.CanAny(evidenceCaps...) {
		return 0, forbiddenFor("uploading evidence", evidenceCaps...)
	}
	if obs.EvidenceCount >= models.MaxEvidencePerObservation {
		s.metrics.IncEvidenceRejected()
		return 0, evidenceLimitError()
	}
	return models.MaxEvidencePerObservation - obs.EvidenceCount, nil
}

// ConfirmEvidenceUpload counts an uploaded file against the cap. The
// increment is conditional in the store so concurrent confirmations cannot
// overshoot.
func (s *Service) ConfirmEvidenceUpload(ctx context.Context, actor id.Actor, obsID id.ObservationID, evidenceRef string) (*models.Observation, error) {
	ctx, span := s.tracer.Start(ctx, "observation.ConfirmEvidenceUpload", trace.WithAttributes(
		attribute.String("observation_id", obsID.String()),
	))
	defer span.End()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	evidenceRef = strings.TrimSpace(evidenceRef)
	if evidenceRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "evidence reference is required")
	}

	var out *models.Observation
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		obs, err := loadVisible(ctx, st, actor, obsID)
		if err != nil {
			return err
		}
		if !actor.CanAny(evidenceCaps...) {
			return forbiddenFor("uploading evidence", evidenceCaps...)
		}

		now := requestcontext.Now(ctx)
		updated, err := st.IncrementEvidence(ctx, actor.TenantID, obsID, models.MaxEvidencePerObservation, now)
		if err != nil {
			switch {
			case errors.Is(err, sentinel.ErrLimitReached):
				s.metrics.IncEvidenceRejected()
				return evidenceLimitError()
			case errors.Is(err, sentinel.ErrNotFound):
				return observationNotFound()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record evidence")
		}
		entry := models.NewTimelineEntry(updated, models.EventEvidenceUploaded, actor.ID,
			fmt.Sprint(obs.EvidenceCount), fmt.Sprint(updated.EvidenceCount), evidenceRef, now)
		if err := appendTimeline(ctx, st, entry); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, actor, updated, audit.EventEvidenceConfirmed, func(e *audit.ComplianceEvent) {
			e.Justification = evidenceRef
		}); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.logAudit(ctx, string(audit.EventEvidenceConfirmed),
		"observation_id", obsID.String(),
		"actor_id", actor.ID.String(),
		"evidence_count", out.EvidenceCount,
	)
	return out, nil
}

// loadVisible treats an out-of-scope Observation exactly like a missing one.
func loadVisible(ctx context.Context, st store.Store, actor id.Actor, obsID id.ObservationID) (*models.Observation, error) {
	obs, err := st.FindByID(ctx, actor.TenantID, obsID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, observationNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}
	if !obs.VisibleTo(actor) {
		return nil, observationNotFound()
	}
	return obs, nil
}

func checkVersion(obs *models.Observation, expected int) error {
	if obs.Version != expected {
		return conflictError(expected, obs.Version)
	}
	return nil
}

func updateIfVersion(ctx context.Context, st store.Store, obs *models.Observation, expected int) error {
	if err := st.UpdateIfVersion(ctx, obs, expected); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.New(dErrors.CodeConflict,
				"observation was modified concurrently; reload and retry")
		case errors.Is(err, sentinel.ErrNotFound):
			return observationNotFound()
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update observation")
	}
	return nil
}

func appendTimeline(ctx context.Context, st store.Store, entries ...models.TimelineEntry) error {
	if err := st.AppendTimeline(ctx, entries...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append timeline entry")
	}
	return nil
}

func observationNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "observation not found")
}

func conflictError(expected, current int) error {
	return dErrors.New(dErrors.CodeConflict,
		fmt.Sprintf("observation version is %d, request expected %d; reload and retry", current, expected))
}

func evidenceLimitError() error {
	return dErrors.New(dErrors.CodeLimitExceeded,
		fmt.Sprintf("an observation can hold at most %d evidence files", models.MaxEvidencePerObservation))
}

func forbiddenFor(action string, caps ...id.Capability) error {
	roles := id.RolesGranting(caps...)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return dErrors.New(dErrors.CodeForbidden, action+" requires role "+strings.Join(names, " or "))
}

// emitAudit is always the last write of a unit of work.
func (s *Service) emitAudit(ctx context.Context, actor id.Actor, obs *models.Observation, action audit.AuditEvent, decorate func(*audit.ComplianceEvent)) error {
	event := audit.ComplianceEvent{
		Timestamp:     requestcontext.Now(ctx),
		TenantID:      obs.TenantID,
		ActorID:       actor.ID,
		SessionID:     actor.SessionID,
		ObservationID: obs.ID,
		Action:        action,
		RequestID:     requestcontext.RequestID(ctx),
		ClientIP:      requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgentFamily(ctx),
	}
	if decorate != nil {
		decorate(&event)
	}
	return s.auditor.Emit(ctx, event)
}

// notify runs a best-effort hand-off. Failures are logged and counted only.
func (s *Service) notify(ctx context.Context, kind string, fn func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	if err := fn(ctx); err != nil {
		s.metrics.IncNotifyFailure(kind)
		s.logger.WarnContext(ctx, "notification hand-off failed",
			"type", kind,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) recordTransitionFailure(from, to models.Status, err error) {
	outcome := string(dErrors.CodeOf(err))
	if from == "" {
		from = "unknown"
	}
	s.metrics.ObserveTransition(string(from), string(to), outcome)
	s.countConflict("transition", err)
}

func (s *Service) countConflict(operation string, err error) {
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		s.metrics.IncConflict(operation)
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func (s *Service) logAudit(ctx context.Context, event string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, event, attrs.Audit(ctx, event, args...)...)
}
