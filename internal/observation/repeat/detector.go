// Package repeat finds earlier closed findings that a draft repeats and
// applies the occurrence-based severity escalation when a repeat is
// confirmed.
package repeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
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

const (
	// SimilarityThreshold is exclusive: a candidate must score above it.
	SimilarityThreshold = 0.5
	// MaxCandidates caps a detection result.
	MaxCandidates = 5
)

// AuditPublisher records compliance events inside the caller's transaction.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Candidate is a closed Observation that a draft may repeat.
type Candidate struct {
	ObservationID   id.ObservationID `json:"observation_id"`
	Title           string           `json:"title"`
	Severity        models.Severity  `json:"severity"`
	RiskCategory    string           `json:"risk_category,omitempty"`
	ClosedAt        time.Time        `json:"closed_at"`
	Similarity      float64          `json:"similarity"`
	OccurrenceCount int              `json:"occurrence_count"`
}

// DetectQuery describes the draft being checked.
type DetectQuery struct {
	BranchID     id.BranchID
	AuditAreaID  id.AuditAreaID
	Title        string
	RiskCategory string
}

// ConfirmResult reports the outcome of linking a repeat.
type ConfirmResult struct {
	Severity        models.Severity `json:"severity"`
	WasEscalated    bool            `json:"was_escalated"`
	OccurrenceCount int             `json:"occurrence_count"`
	Version         int             `json:"version"`
}

type Detector struct {
	store   store.Store
	tx      store.Tx
	auditor AuditPublisher
	scorer  Scorer
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// WithScorer replaces the default trigram scorer.
func WithScorer(s Scorer) Option {
	return func(d *Detector) {
		d.scorer = s
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Detector) {
		d.tracer = tp.Tracer(tracerName)
	}
}

const tracerName = "auditgov/observation/repeat"

func New(st store.Store, tx store.Tx, auditor AuditPublisher, opts ...Option) (*Detector, error) {
	if st == nil {
		return nil, errors.New("observation store is required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if auditor == nil {
		return nil, errors.New("audit publisher is required")
	}
	d := &Detector{
		store:   st,
		tx:      tx,
		auditor: auditor,
		scorer:  TrigramScorer{},
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DetectCandidates returns up to MaxCandidates closed Observations in the
// same branch and audit area whose titles score above SimilarityThreshold,
// best match first. OccurrenceCount is the number of closed Observations
// in that scope, similar or not.
func (d *Detector) DetectCandidates(ctx context.Context, actor id.Actor, q DetectQuery) ([]Candidate, error) {
	ctx, span := d.tracer.Start(ctx, "repeat.DetectCandidates")
	defer span.End()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.Can(id.CapManageRepeat) {
		return nil, forbidden("detecting repeat findings")
	}
	title := strings.TrimSpace(q.Title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if q.BranchID.IsNil() || q.AuditAreaID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "branch_id and audit_area_id are required")
	}

	pool, err := d.store.ListClosedInScope(ctx, actor.TenantID, q.BranchID, q.AuditAreaID)
	if err != nil {
		return nil, d.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search closed observations"))
	}
	if category := strings.TrimSpace(q.RiskCategory); category != "" {
		filtered := pool[:0:0]
		for _, obs := range pool {
			if strings.EqualFold(obs.RiskCategory, category) {
				filtered = append(filtered, obs)
			}
		}
		pool = filtered
	}

	ranked := Rank(title, pool, d.scorer)
	if len(ranked) == 0 {
		d.metrics.ObserveCandidates(0)
		return []Candidate{}, nil
	}

	occurrences, err := d.store.CountClosedInScope(ctx, actor.TenantID, q.BranchID, q.AuditAreaID)
	if err != nil {
		return nil, d.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count closed observations"))
	}
	for i := range ranked {
		ranked[i].OccurrenceCount = occurrences
	}

	d.metrics.ObserveCandidates(len(ranked))
	span.SetAttributes(attribute.Int("candidates", len(ranked)))
	return ranked, nil
}

// Rank scores pool against title and keeps the best MaxCandidates above
// the threshold. Ties go to the most recently closed, then to the lower ID,
// so the order is stable.
func Rank(title string, pool []*models.Observation, scorer Scorer) []Candidate {
	out := make([]Candidate, 0, len(pool))
	for _, obs := range pool {
		score := scorer.Score(title, obs.Title)
		if score <= SimilarityThreshold {
			continue
		}
		out = append(out, Candidate{
			ObservationID: obs.ID,
			Title:         obs.Title,
			Severity:      obs.Severity,
			RiskCategory:  obs.RiskCategory,
			ClosedAt:      obs.StatusChangedAt,
			Similarity:    score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if !out[i].ClosedAt.Equal(out[j].ClosedAt) {
			return out[i].ClosedAt.After(out[j].ClosedAt)
		}
		return out[i].ObservationID.String() < out[j].ObservationID.String()
	})
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out
}

// ConfirmRepeat links newID to the closed previousID and escalates the new
// Observation's severity from the lineage's occurrence count.
func (d *Detector) ConfirmRepeat(ctx context.Context, actor id.Actor, newID, previousID id.ObservationID, expectedVersion int) (*ConfirmResult, error) {
	ctx, span := d.tracer.Start(ctx, "repeat.ConfirmRepeat", trace.WithAttributes(
		attribute.String("observation_id", newID.String()),
		attribute.String("previous_observation_id", previousID.String()),
	))
	defer span.End()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if newID == previousID {
		return nil, dErrors.New(dErrors.CodeValidation, "an observation cannot repeat itself")
	}

	var (
		result       ConfirmResult
		fromSeverity models.Severity
	)
	err := d.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		obs, previous, err := loadPair(ctx, st, actor, newID, previousID)
		if err != nil {
			return err
		}
		if !actor.Can(id.CapManageRepeat) {
			return forbidden("confirming a repeat finding")
		}
		if err := checkLinkable(obs, previous); err != nil {
			return err
		}
		if obs.Version != expectedVersion {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("observation version is %d, request expected %d; reload and retry", obs.Version, expectedVersion))
		}

		closed, err := st.CountClosedInScope(ctx, actor.TenantID, previous.BranchID, previous.AuditAreaID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count closed observations")
		}
		occurrence := closed + 1
		fromSeverity = obs.Severity
		escalated := models.EscalateForOccurrence(obs.Severity, occurrence)

		now := requestcontext.Now(ctx)
		obs.ApplyRepeat(previous.ID, occurrence, escalated, now)
		if err := st.UpdateIfVersion(ctx, obs, expectedVersion); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "observation was modified concurrently; reload and retry")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update observation")
		}

		entries := []models.TimelineEntry{
			models.NewTimelineEntry(obs, models.EventRepeatConfirmed, actor.ID, "", previous.ID.String(),
				fmt.Sprintf("occurrence %d", occurrence), now),
		}
		if escalated != fromSeverity {
			entries = append(entries, models.NewTimelineEntry(obs, models.EventSeverityEscalated, actor.ID,
				string(fromSeverity), string(escalated), fmt.Sprintf("repeat occurrence %d", occurrence), now))
		}
		if err := st.AppendTimeline(ctx, entries...); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append timeline entry")
		}

		decision := "linked"
		if escalated != fromSeverity {
			decision = "escalated"
		}
		if err := d.emitAudit(ctx, actor, obs, audit.EventRepeatConfirmed, decision, previous.ID.String()); err != nil {
			return err
		}
		result = ConfirmResult{
			Severity:        escalated,
			WasEscalated:    escalated != fromSeverity,
			OccurrenceCount: occurrence,
			Version:         obs.Version,
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			d.metrics.IncConflict("confirm_repeat")
		}
		return nil, d.fail(span, err)
	}

	d.metrics.IncRepeatDecision("confirmed")
	if result.WasEscalated {
		d.metrics.IncEscalation(string(fromSeverity), string(result.Severity))
	}
	d.logger.InfoContext(ctx, string(audit.EventRepeatConfirmed), attrs.Audit(ctx, string(audit.EventRepeatConfirmed),
		"observation_id", newID.String(),
		"previous_observation_id", previousID.String(),
		"occurrence", result.OccurrenceCount,
		"severity", string(result.Severity),
		"escalated", result.WasEscalated,
	)...)
	return &result, nil
}

// DismissRepeat records that the draft is not a repeat of previousID. The
// Observation itself is left untouched.
func (d *Detector) DismissRepeat(ctx context.Context, actor id.Actor, newID, previousID id.ObservationID, comment string) error {
	ctx, span := d.tracer.Start(ctx, "repeat.DismissRepeat", trace.WithAttributes(
		attribute.String("observation_id", newID.String()),
		attribute.String("previous_observation_id", previousID.String()),
	))
	defer span.End()

	if err := actor.Validate(); err != nil {
		return err
	}
	if newID == previousID {
		return dErrors.New(dErrors.CodeValidation, "an observation cannot repeat itself")
	}
	comment = strings.TrimSpace(comment)

	err := d.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		obs, previous, err := loadPair(ctx, st, actor, newID, previousID)
		if err != nil {
			return err
		}
		if !actor.Can(id.CapManageRepeat) {
			return forbidden("dismissing a repeat finding")
		}
		if err := checkLineage(obs, previous); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		entry := models.NewTimelineEntry(obs, models.EventRepeatDismissed, actor.ID, "", previous.ID.String(), comment, now)
		if err := st.AppendTimeline(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append timeline entry")
		}
		return d.emitAudit(ctx, actor, obs, audit.EventRepeatDismissed, "dismissed", comment)
	})
	if err != nil {
		return d.fail(span, err)
	}

	d.metrics.IncRepeatDecision("dismissed")
	d.logger.InfoContext(ctx, string(audit.EventRepeatDismissed), attrs.Audit(ctx, string(audit.EventRepeatDismissed),
		"observation_id", newID.String(),
		"previous_observation_id", previousID.String(),
	)...)
	return nil
}

func loadPair(ctx context.Context, st store.Store, actor id.Actor, newID, previousID id.ObservationID) (*models.Observation, *models.Observation, error) {
	obs, err := load(ctx, st, actor, newID)
	if err != nil {
		return nil, nil, err
	}
	previous, err := load(ctx, st, actor, previousID)
	if err != nil {
		return nil, nil, err
	}
	return obs, previous, nil
}

func load(ctx context.Context, st store.Store, actor id.Actor, obsID id.ObservationID) (*models.Observation, error) {
	obs, err := st.FindByID(ctx, actor.TenantID, obsID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "observation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}
	if !obs.VisibleTo(actor) {
		return nil, dErrors.New(dErrors.CodeNotFound, "observation not found")
	}
	return obs, nil
}

// checkLineage requires previous to be a CLOSED finding from obs's own
// branch and audit area.
func checkLineage(obs, previous *models.Observation) error {
	if previous.Status != models.StatusClosed {
		return dErrors.New(dErrors.CodeValidation, "a repeat can only be linked to a CLOSED observation")
	}
	if !obs.HasRepeatScope() {
		return dErrors.New(dErrors.CodeValidation, "observation needs a branch and audit area before repeat review")
	}
	if obs.BranchID != previous.BranchID || obs.AuditAreaID != previous.AuditAreaID {
		return dErrors.New(dErrors.CodeValidation, "previous observation belongs to a different branch or audit area")
	}
	return nil
}

func checkLinkable(obs, previous *models.Observation) error {
	if err := checkLineage(obs, previous); err != nil {
		return err
	}
	if !obs.Status.IsPreIssue() || obs.ResolvedDuringFieldwork {
		return dErrors.New(dErrors.CodeForbidden,
			"repeat findings are confirmed while drafting, observation is "+string(obs.Status))
	}
	if obs.IsLinkedRepeat() {
		return dErrors.New(dErrors.CodeForbidden,
			"observation is already linked as a repeat of "+obs.RepeatOfID.String())
	}
	return nil
}

func forbidden(action string) error {
	roles := id.RolesGranting(id.CapManageRepeat)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return dErrors.New(dErrors.CodeForbidden, action+" requires role "+strings.Join(names, " or "))
}

func (d *Detector) emitAudit(ctx context.Context, actor id.Actor, obs *models.Observation, action audit.AuditEvent, decision, justification string) error {
	return d.auditor.Emit(ctx, audit.ComplianceEvent{
		Timestamp:     requestcontext.Now(ctx),
		TenantID:      obs.TenantID,
		ActorID:       actor.ID,
		SessionID:     actor.SessionID,
		ObservationID: obs.ID,
		Action:        action,
		Decision:      decision,
		Justification: justification,
		RequestID:     requestcontext.RequestID(ctx),
		ClientIP:      requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgentFamily(ctx),
	})
}

func (d *Detector) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}
