package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,RepeatService

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"auditgov/internal/observation/models"
	"auditgov/internal/observation/repeat"
	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
	"auditgov/pkg/platform/httputil"
	"auditgov/pkg/requestcontext"
)

// Service is the lifecycle surface the handler drives.
type Service interface {
	Create(ctx context.Context, actor id.Actor, cmd models.CreateObservationCommand) (*models.Observation, error)
	Get(ctx context.Context, actor id.Actor, obsID id.ObservationID) (*models.Observation, error)
	ListTimeline(ctx context.Context, actor id.Actor, obsID id.ObservationID) ([]models.TimelineEntry, error)
	ListResponses(ctx context.Context, actor id.Actor, obsID id.ObservationID) ([]models.AuditeeResponse, error)
	RequestTransition(ctx context.Context, actor id.Actor, obsID id.ObservationID, target models.Status, comment string, expectedVersion int) (models.Status, error)
	ResolveDuringFieldwork(ctx context.Context, actor id.Actor, obsID id.ObservationID, reason string, expectedVersion int) (*models.Observation, error)
	SubmitResponse(ctx context.Context, actor id.Actor, obsID id.ObservationID, respType models.ResponseType, text string, expectedVersion int) (*models.Observation, error)
	CheckEvidenceCapacity(ctx context.Context, actor id.Actor, obsID id.ObservationID) (int, error)
	ConfirmEvidenceUpload(ctx context.Context, actor id.Actor, obsID id.ObservationID, evidenceRef string) (*models.Observation, error)
}

// RepeatService is the repeat-finding surface.
type RepeatService interface {
	DetectCandidates(ctx context.Context, actor id.Actor, q repeat.DetectQuery) ([]repeat.Candidate, error)
	ConfirmRepeat(ctx context.Context, actor id.Actor, newID, previousID id.ObservationID, expectedVersion int) (*repeat.ConfirmResult, error)
	DismissRepeat(ctx context.Context, actor id.Actor, newID, previousID id.ObservationID, comment string) error
}

// Handler exposes Observation governance over HTTP.
type Handler struct {
	service Service
	repeats RepeatService
	logger  *slog.Logger
}

func New(service Service, repeats RepeatService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		repeats: repeats,
		logger:  logger,
	}
}

// Register mounts the routes. Authentication runs upstream.
func (h *Handler) Register(r chi.Router) {
	r.Route("/observations", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/repeat-candidates", h.HandleRepeatCandidates)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Get("/timeline", h.HandleTimeline)
			r.Get("/responses", h.HandleListResponses)
			r.Post("/transitions", h.HandleTransition)
			r.Post("/fieldwork-resolution", h.HandleFieldworkResolution)
			r.Post("/responses", h.HandleSubmitResponse)
			r.Get("/evidence/capacity", h.HandleEvidenceCapacity)
			r.Post("/evidence", h.HandleConfirmEvidence)
			r.Post("/repeat/confirm", h.HandleConfirmRepeat)
			r.Post("/repeat/dismiss", h.HandleDismissRepeat)
		})
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateObservationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	obs, err := h.service.Create(ctx, actor, req.Command())
	if err != nil {
		h.fail(w, r, "create observation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromObservation(obs))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	obs, err := h.service.Get(r.Context(), actor, obsID)
	if err != nil {
		h.fail(w, r, "get observation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromObservation(obs))
}

func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.ListTimeline(r.Context(), actor, obsID)
	if err != nil {
		h.fail(w, r, "list timeline failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTimeline(entries))
}

func (h *Handler) HandleListResponses(w http.ResponseWriter, r *http.Request) {
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	responses, err := h.service.ListResponses(r.Context(), actor, obsID)
	if err != nil {
		h.fail(w, r, "list responses failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromResponses(responses))
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	status, err := h.service.RequestTransition(ctx, actor, obsID, req.target, req.Comment, req.ExpectedVersion)
	if err != nil {
		h.fail(w, r, "transition failed", err)
		return
	}
	h.logger.InfoContext(ctx, "observation transitioned",
		"request_id", requestcontext.RequestID(ctx),
		"observation_id", obsID.String(),
		"status", string(status),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, TransitionResponse{Status: string(status)})
}

func (h *Handler) HandleFieldworkResolution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[FieldworkResolutionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	obs, err := h.service.ResolveDuringFieldwork(ctx, actor, obsID, req.Reason, req.ExpectedVersion)
	if err != nil {
		h.fail(w, r, "fieldwork resolution failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromObservation(obs))
}

func (h *Handler) HandleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResponseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	obs, err := h.service.SubmitResponse(ctx, actor, obsID, req.responseType, req.Text, req.ExpectedVersion)
	if err != nil {
		h.fail(w, r, "submit response failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromObservation(obs))
}

func (h *Handler) HandleEvidenceCapacity(w http.ResponseWriter, r *http.Request) {
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	remaining, err := h.service.CheckEvidenceCapacity(r.Context(), actor, obsID)
	if err != nil {
		h.fail(w, r, "evidence capacity check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EvidenceCapacityResponse{
		Remaining: remaining,
		Limit:     models.MaxEvidencePerObservation,
	})
}

func (h *Handler) HandleConfirmEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EvidenceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	obs, err := h.service.ConfirmEvidenceUpload(ctx, actor, obsID, req.EvidenceRef)
	if err != nil {
		h.fail(w, r, "confirm evidence failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromObservation(obs))
}

func (h *Handler) HandleRepeatCandidates(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	branchID, err := id.ParseBranchID(strings.TrimSpace(q.Get("branch_id")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	areaID, err := id.ParseAuditAreaID(strings.TrimSpace(q.Get("audit_area_id")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	candidates, err := h.repeats.DetectCandidates(r.Context(), actor, repeat.DetectQuery{
		BranchID:     branchID,
		AuditAreaID:  areaID,
		Title:        q.Get("title"),
		RiskCategory: q.Get("risk_category"),
	})
	if err != nil {
		h.fail(w, r, "repeat detection failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CandidatesResponse{Candidates: candidates})
}

func (h *Handler) HandleConfirmRepeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ConfirmRepeatRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.repeats.ConfirmRepeat(ctx, actor, obsID, req.previous, req.ExpectedVersion)
	if err != nil {
		h.fail(w, r, "confirm repeat failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleDismissRepeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, obsID, ok := h.requireActorAndID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DismissRepeatRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.repeats.DismissRepeat(ctx, actor, obsID, req.previous, req.Comment); err != nil {
		h.fail(w, r, "dismiss repeat failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (id.Actor, bool) {
	actor, ok := requestcontext.Actor(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.Actor{}, false
	}
	return actor, true
}

func (h *Handler) requireActorAndID(w http.ResponseWriter, r *http.Request) (id.Actor, id.ObservationID, bool) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return id.Actor{}, id.ObservationID{}, false
	}
	obsID, err := id.ParseObservationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.Actor{}, id.ObservationID{}, false
	}
	return actor, obsID, true
}

// fail logs server-side faults loudly and client errors quietly.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if httputil.StatusFor(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"path", r.URL.Path,
			"error", err,
		)
	} else {
		h.logger.InfoContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"path", r.URL.Path,
			"code", string(code),
		)
	}
	httputil.WriteError(w, err)
}
