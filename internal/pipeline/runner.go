package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/coach-nudge/internal/collector"
	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/drafts"
	"github.com/ignite/coach-nudge/internal/nudge"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
	"github.com/ignite/coach-nudge/internal/scoring"
)

// ReportSink archives run reports. Failures are logged, never fatal.
type ReportSink interface {
	SaveRunReport(ctx context.Context, r domain.RunReport) error
}

// Drafter turns a rendered template into final copy.
type Drafter interface {
	Draft(ctx context.Context, req drafts.Request) (drafts.Draft, error)
}

// RunnerDeps are the collaborators of a Runner. Sink and Drafter are optional.
type RunnerDeps struct {
	Settings  SettingsRepository
	Clients   collector.Store
	Profiles  ProfileRepository
	Campaigns CampaignRepository
	History   HistoryRepository
	Catalog   *nudge.Catalog
	Drafter   Drafter
	Sink      ReportSink
}

// RunnerConfig holds policy that is not per-trainer.
type RunnerConfig struct {
	Policy             scoring.Policy
	Defaults           domain.TrainerSettings
	SendOffset         time.Duration
	FallbackToTemplate bool
}

// Runner executes one scoring run per call.
type Runner struct {
	deps      RunnerDeps
	cfg       RunnerConfig
	collector *collector.Collector
	scorer    *scoring.Scorer
	selector  *nudge.Selector
	renderer  *nudge.Renderer
	now       func() time.Time
}

// NewRunner wires a runner.
func NewRunner(deps RunnerDeps, cfg RunnerConfig) *Runner {
	cfg.Policy = cfg.Policy.WithDefaults()
	if deps.Drafter == nil {
		deps.Drafter = drafts.New(nil, 0)
	}
	return &Runner{
		deps:      deps,
		cfg:       cfg,
		collector: collector.New(deps.Clients, cfg.Policy.WindowDays),
		scorer:    scoring.NewScorer(cfg.Policy),
		selector:  nudge.NewSelector(deps.Catalog),
		renderer:  nudge.NewRenderer(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Settings returns the trainer's settings, or the configured defaults when
// the trainer has no settings row.
func (r *Runner) Settings(ctx context.Context, trainerID string) (domain.TrainerSettings, error) {
	s, err := r.deps.Settings.GetSettings(ctx, trainerID)
	if errors.Is(err, ErrNotFound) {
		d := r.cfg.Defaults
		d.TrainerID = trainerID
		return d, nil
	}
	if err != nil {
		return domain.TrainerSettings{}, err
	}
	if s.Channel == "" {
		s.Channel = r.cfg.Defaults.Channel
	}
	if s.Timezone == "" {
		s.Timezone = r.cfg.Defaults.Timezone
	}
	return *s, nil
}

// RunOnce scores every active client of the trainer, upserts their risk
// profiles and schedules nudges for the selected ones. Re-running it is safe:
// profiles are overwritten, and pending campaigns, nudge history and the
// campaigns already created today keep the same clients from being nudged
// twice. Only settings or store failures return an error.
func (r *Runner) RunOnce(ctx context.Context, trainerID string) (domain.RunReport, error) {
	now := r.now()
	report := domain.RunReport{
		RunID:     uuid.New().String(),
		TrainerID: trainerID,
		StartedAt: now,
		Dropped:   map[string]int{},
	}

	err := r.run(ctx, trainerID, now, &report)
	if err != nil {
		report.Error = err.Error()
	}
	report.FinishedAt = r.now()
	report.DurationMS = report.FinishedAt.Sub(report.StartedAt).Milliseconds()

	if err != nil {
		logger.Error("[NudgeRunner] run failed", "trainer_id", trainerID, "run_id", report.RunID, "error", err)
	} else {
		logger.Info("[NudgeRunner] run complete",
			"trainer_id", trainerID, "run_id", report.RunID, "skipped", report.Skipped,
			"collected", report.Collected, "eligible", report.Eligible,
			"scheduled", report.Scheduled, "suppressed", report.Suppressed,
			"draft_failures", report.DraftFailures, "duration_ms", report.DurationMS)
	}

	if r.deps.Sink != nil {
		if serr := r.deps.Sink.SaveRunReport(ctx, report); serr != nil {
			logger.Warn("[NudgeRunner] failed to archive run report", "run_id", report.RunID, "error", serr)
		}
	}
	return report, err
}

func (r *Runner) run(ctx context.Context, trainerID string, now time.Time, report *domain.RunReport) error {
	settings, err := r.Settings(ctx, trainerID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.Enabled {
		report.Skipped = "disabled"
		return nil
	}

	facts, err := r.collector.Collect(ctx, trainerID, now)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	report.Collected = len(facts)
	if len(facts) == 0 {
		return nil
	}

	profiles := make([]domain.RiskProfile, 0, len(facts))
	byID := make(map[string]domain.ClientFacts, len(facts))
	ids := make([]string, 0, len(facts))
	for _, f := range facts {
		p := r.scorer.Evaluate(f, now)
		profiles = append(profiles, p)
		byID[f.ClientID] = f
		ids = append(ids, f.ClientID)
		if p.Actionable() {
			report.Eligible++
		}
	}
	report.Scored = len(profiles)

	if err := r.deps.Profiles.UpsertProfiles(ctx, profiles); err != nil {
		return fmt.Errorf("upsert profiles: %w", err)
	}

	lastNudged, err := r.deps.History.LastNudged(ctx, ids)
	if err != nil {
		return fmt.Errorf("nudge history: %w", err)
	}
	pending, err := r.deps.Campaigns.PendingClients(ctx, trainerID)
	if err != nil {
		return fmt.Errorf("pending campaigns: %w", err)
	}
	usedToday, err := r.deps.Campaigns.CountCreatedSince(ctx, trainerID, StartOfDay(now, settings.Timezone))
	if err != nil {
		return fmt.Errorf("count campaigns: %w", err)
	}

	sel := r.selector.Select(nudge.SelectInput{
		Profiles:   profiles,
		Settings:   settings,
		LastNudged: lastNudged,
		Pending:    pending,
		UsedToday:  usedToday,
		Now:        now,
	})
	report.Selected = len(sel.Candidates)
	for _, d := range sel.Dropped {
		report.Dropped[string(d.Reason)]++
		switch d.Reason {
		case nudge.DropFrequencyCap, nudge.DropPending, nudge.DropDailyLimit:
			report.Suppressed++
		}
	}

	sendAt := SendTime(now, r.cfg.SendOffset, settings)
	for _, c := range sel.Candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		content, ok := r.compose(ctx, c, byID[c.ClientID], settings, report)
		if !ok {
			continue
		}
		campaign := &domain.ScheduledCampaign{
			TrainerID:     trainerID,
			ClientID:      c.ClientID,
			TemplateID:    c.TemplateID,
			Category:      c.RecommendedNudgeType,
			Channel:       settings.Channel,
			Content:       content,
			RiskScore:     c.RiskScore,
			PriorityScore: c.PriorityScore,
			ScheduledFor:  sendAt,
			Status:        domain.CampaignScheduled,
			CreatedAt:     now,
		}
		if err := r.deps.Campaigns.CreateCampaign(ctx, campaign); err != nil {
			report.WriteFailures++
			logger.Warn("[NudgeRunner] failed to create campaign", "client_id", c.ClientID, "error", err)
			continue
		}
		report.Scheduled++
	}
	return nil
}

// compose renders the candidate's template and drafts the final copy. A
// failed draft skips the client unless template fallback is enabled.
func (r *Runner) compose(ctx context.Context, c domain.NudgeCandidate, f domain.ClientFacts, s domain.TrainerSettings, report *domain.RunReport) (string, bool) {
	tpl, ok := r.deps.Catalog.Lookup(c.TemplateID, c.RecommendedNudgeType)
	if !ok {
		report.DraftFailures++
		return "", false
	}
	fields := nudge.FieldsFor(f, c.RiskProfile, s.TrainerName)
	rendered, err := r.renderer.Render(tpl.Body, fields)
	if err != nil {
		report.DraftFailures++
		logger.Warn("[NudgeRunner] template render failed", "template_id", tpl.ID, "error", err)
		return "", false
	}

	d, err := r.deps.Drafter.Draft(ctx, drafts.Request{
		Channel:  s.Channel,
		Template: rendered,
		Fields:   fields,
		Profile:  c.RiskProfile,
	})
	if err != nil {
		report.DraftFailures++
		logger.Warn("[NudgeRunner] draft failed", "client_id", c.ClientID, "fallback", r.cfg.FallbackToTemplate, "error", err)
		if !r.cfg.FallbackToTemplate {
			return "", false
		}
		return drafts.Clamp(rendered, s.Channel), true
	}
	return d.Content, true
}

// DraftResult is an on-demand draft for one client.
type DraftResult struct {
	Draft   drafts.Draft       `json:"draft"`
	Profile domain.RiskProfile `json:"profile"`
}

// DraftFor scores a single client right now and drafts the nudge the engine
// would send. Clients below every tier get a check-in draft. An empty
// channel uses the trainer's default.
func (r *Runner) DraftFor(ctx context.Context, trainerID, clientID string, channel domain.Channel) (DraftResult, error) {
	settings, err := r.Settings(ctx, trainerID)
	if err != nil {
		return DraftResult{}, fmt.Errorf("load settings: %w", err)
	}
	if !settings.Enabled {
		return DraftResult{}, ErrTrainerDisabled
	}

	now := r.now()
	facts, err := r.collector.Collect(ctx, trainerID, now)
	if err != nil {
		return DraftResult{}, fmt.Errorf("collect: %w", err)
	}
	var f *domain.ClientFacts
	for i := range facts {
		if facts[i].ClientID == clientID {
			f = &facts[i]
			break
		}
	}
	if f == nil {
		return DraftResult{}, ErrNotFound
	}

	p := r.scorer.Evaluate(*f, now)
	category := p.RecommendedNudgeType
	if !category.Valid() {
		category = domain.NudgeCheckIn
	}
	tpl, ok := r.deps.Catalog.Lookup(p.TemplateID(), category)
	if !ok {
		return DraftResult{}, fmt.Errorf("no template for %s", category)
	}
	fields := nudge.FieldsFor(*f, p, settings.TrainerName)
	rendered, err := r.renderer.Render(tpl.Body, fields)
	if err != nil {
		return DraftResult{}, err
	}
	if channel == "" {
		channel = settings.Channel
	}
	d, err := r.deps.Drafter.Draft(ctx, drafts.Request{
		Channel:  channel,
		Template: rendered,
		Fields:   fields,
		Profile:  p,
	})
	if err != nil {
		return DraftResult{}, err
	}
	return DraftResult{Draft: d, Profile: p}, nil
}
