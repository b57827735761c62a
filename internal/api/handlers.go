package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/coach-nudge/internal/ai"
	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/nudge"
	"github.com/ignite/coach-nudge/internal/pipeline"
	"github.com/ignite/coach-nudge/internal/pkg/distlock"
	"github.com/ignite/coach-nudge/internal/pkg/httputil"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

// RunService runs scoring passes and single-client drafts.
type RunService interface {
	RunOnce(ctx context.Context, trainerID string) (domain.RunReport, error)
	DraftFor(ctx context.Context, trainerID, clientID string, channel domain.Channel) (pipeline.DraftResult, error)
}

// DispatchService sends due campaigns.
type DispatchService interface {
	DispatchDue(ctx context.Context) (domain.DispatchReport, error)
}

// ProfileReader lists stored risk snapshots.
type ProfileReader interface {
	ListProfiles(ctx context.Context, trainerID string, minScore int) ([]domain.RiskProfile, error)
}

// CampaignReader lists campaigns for a trainer.
type CampaignReader interface {
	ListCampaigns(ctx context.Context, trainerID string, status domain.CampaignStatus, limit int) ([]domain.ScheduledCampaign, error)
}

// ReportReader lists archived run reports.
type ReportReader interface {
	ListRunReports(ctx context.Context, trainerID string, limit int) ([]domain.RunReport, error)
}

// TemplateLister exposes the active template catalog.
type TemplateLister interface {
	Templates() []nudge.Template
}

// LockFactory creates distributed locks by key.
type LockFactory interface {
	New(key string) distlock.DistLock
}

// Handlers contains the HTTP handlers. Locks, Reports and Templates are optional.
type Handlers struct {
	Runs       RunService
	Dispatcher DispatchService
	Profiles   ProfileReader
	Campaigns  CampaignReader
	Reports    ReportReader
	Templates  TemplateLister
	Locks      LockFactory
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// RunTrainer runs one scoring pass for the trainer and returns its report.
//
//	POST /api/trainers/{trainerID}/runs
func (h *Handlers) RunTrainer(w http.ResponseWriter, r *http.Request) {
	trainerID := chi.URLParam(r, "trainerID")

	var report domain.RunReport
	err := h.withLock(r.Context(), distlock.TrainerRunKey(trainerID), func(ctx context.Context) error {
		var err error
		report, err = h.Runs.RunOnce(ctx, trainerID)
		return err
	})
	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		httputil.Error(w, http.StatusConflict, "run_in_progress", "a run for this trainer is already in progress")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, report)
	}
}

// ListRunReports returns archived run reports, newest first.
//
//	GET /api/trainers/{trainerID}/runs?limit=
func (h *Handlers) ListRunReports(w http.ResponseWriter, r *http.Request) {
	if h.Reports == nil {
		httputil.Error(w, http.StatusNotImplemented, "not_configured", "run report archive is not configured")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	reports, err := h.Reports.ListRunReports(r.Context(), chi.URLParam(r, "trainerID"), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"reports": reports, "count": len(reports)})
}

// ListTemplates returns the nudge templates in use, built-in and overridden.
//
//	GET /api/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	if h.Templates == nil {
		httputil.Error(w, http.StatusNotImplemented, "not_configured", "template catalog is not configured")
		return
	}
	templates := h.Templates.Templates()
	httputil.OK(w, map[string]any{"templates": templates, "count": len(templates)})
}

// ListRiskProfiles returns the latest risk snapshots at or above min_score.
//
//	GET /api/trainers/{trainerID}/risk-profiles?min_score=
func (h *Handlers) ListRiskProfiles(w http.ResponseWriter, r *http.Request) {
	minScore := 0
	if v := r.URL.Query().Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			httputil.BadRequest(w, "min_score must be an integer between 0 and 100")
			return
		}
		minScore = n
	}
	profiles, err := h.Profiles.ListProfiles(r.Context(), chi.URLParam(r, "trainerID"), minScore)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if profiles == nil {
		profiles = []domain.RiskProfile{}
	}
	httputil.OK(w, map[string]any{"profiles": profiles, "count": len(profiles)})
}

// ListCampaigns returns the trainer's campaigns, optionally filtered by status.
//
//	GET /api/trainers/{trainerID}/campaigns?status=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := domain.CampaignStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.CampaignScheduled, domain.CampaignSent, domain.CampaignFailed:
	default:
		httputil.BadRequest(w, "status must be one of scheduled, sent, failed")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	campaigns, err := h.Campaigns.ListCampaigns(r.Context(), chi.URLParam(r, "trainerID"), status, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []domain.ScheduledCampaign{}
	}
	httputil.OK(w, map[string]any{"campaigns": campaigns, "count": len(campaigns)})
}

// DraftRequest optionally overrides the delivery channel.
type DraftRequest struct {
	Channel domain.Channel `json:"channel" validate:"omitempty,oneof=sms email"`
}

// CreateDraft scores one client now and returns the drafted nudge.
//
//	POST /api/trainers/{trainerID}/clients/{clientID}/drafts
func (h *Handlers) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.Runs.DraftFor(r.Context(), chi.URLParam(r, "trainerID"), chi.URLParam(r, "clientID"), req.Channel)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	httputil.Created(w, res)
}

func writeDraftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		httputil.NotFound(w, "client not found or not eligible for messaging")
	case errors.Is(err, pipeline.ErrTrainerDisabled):
		httputil.Error(w, http.StatusConflict, "trainer_disabled", "nudges are disabled for this trainer")
	case errors.Is(err, ai.ErrRateLimited):
		httputil.Error(w, http.StatusTooManyRequests, "rate_limited", "AI provider rate limit reached, retry later")
	case errors.Is(err, ai.ErrQuotaExceeded):
		httputil.Error(w, http.StatusPaymentRequired, "quota_exceeded", "AI provider quota exhausted")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("[API] draft timed out", "error", err)
		httputil.Error(w, http.StatusGatewayTimeout, "timeout", "draft generation timed out")
	default:
		httputil.InternalError(w, err)
	}
}

// Dispatch sends every due campaign once.
//
//	POST /api/dispatch
func (h *Handlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	var report domain.DispatchReport
	err := h.withLock(r.Context(), distlock.DispatchKey, func(ctx context.Context) error {
		var err error
		report, err = h.Dispatcher.DispatchDue(ctx)
		return err
	})
	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		httputil.Error(w, http.StatusConflict, "dispatch_in_progress", "a dispatch pass is already in progress")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, report)
	}
}

func (h *Handlers) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if h.Locks == nil {
		return fn(ctx)
	}
	return distlock.WithLock(ctx, h.Locks.New(key), fn)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		httputil.BadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}
