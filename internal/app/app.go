// Package app wires configuration into the stores, clients and services
// shared by cmd/server and cmd/worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/coach-nudge/internal/ai"
	"github.com/ignite/coach-nudge/internal/config"
	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/drafts"
	"github.com/ignite/coach-nudge/internal/messaging"
	"github.com/ignite/coach-nudge/internal/nudge"
	"github.com/ignite/coach-nudge/internal/pipeline"
	"github.com/ignite/coach-nudge/internal/pkg/distlock"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
	"github.com/ignite/coach-nudge/internal/repository/postgres"
	"github.com/ignite/coach-nudge/internal/storage"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client // nil when locks use Postgres
	Locks  *distlock.Factory

	Clients   *postgres.ClientRepo
	Settings  *postgres.SettingsRepo
	Profiles  *postgres.ProfileRepo
	Campaigns *postgres.CampaignRepo
	History   *postgres.HistoryRepo
	Reports   *storage.ReportStore // nil when reports are disabled
	Catalog   *nudge.Catalog

	Runner     *pipeline.Runner
	Dispatcher *pipeline.Dispatcher
}

// New connects to every configured backend and builds the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	a := &App{
		Config:    cfg,
		DB:        db,
		Clients:   postgres.NewClientRepo(db),
		Settings:  postgres.NewSettingsRepo(db),
		Profiles:  postgres.NewProfileRepo(db),
		Campaigns: postgres.NewCampaignRepo(db),
		History:   postgres.NewHistoryRepo(db),
	}

	if cfg.Redis.URL != "" {
		a.Redis = newRedis(cfg.Redis.URL)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, run locks fall back to postgres", "error", err)
			a.Redis.Close()
			a.Redis = nil
		}
	}
	a.Locks = distlock.NewFactory(a.Redis, db.DB, cfg.Scheduler.LockTTL())

	if cfg.Reports.Enabled {
		a.Reports, err = storage.NewReportStore(ctx, storage.Options{
			Region:    cfg.Reports.Region,
			Table:     cfg.Reports.DynamoDBTable,
			Bucket:    cfg.Reports.S3Bucket,
			Prefix:    cfg.Reports.S3Prefix,
			Retention: time.Duration(cfg.Reports.RetentionDays) * 24 * time.Hour,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("report store: %w", err)
		}
	}

	catalog, err := nudge.NewCatalog(templateOverrides(cfg.Templates)...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog = catalog

	gen, err := newGenerator(ctx, cfg.AI)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := pipeline.RunnerDeps{
		Settings:  a.Settings,
		Clients:   a.Clients,
		Profiles:  a.Profiles,
		Campaigns: a.Campaigns,
		History:   a.History,
		Catalog:   catalog,
		Drafter:   drafts.New(gen, cfg.AI.Timeout()),
	}
	if a.Reports != nil {
		deps.Sink = a.Reports
	}
	a.Runner = pipeline.NewRunner(deps, pipeline.RunnerConfig{
		Policy:             cfg.Scoring,
		Defaults:           TrainerDefaults(cfg.TrainerDefaults),
		SendOffset:         cfg.Scheduler.SendOffset(),
		FallbackToTemplate: cfg.AI.FallbackToTemplate,
	})

	router, err := newRouter(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher = pipeline.NewDispatcher(a.Campaigns, a.Clients, router,
		cfg.Dispatcher.BatchSize, cfg.Dispatcher.SendTimeout())

	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// TrainerDefaults converts the configured defaults into settings.
func TrainerDefaults(c config.TrainerDefaultsConfig) domain.TrainerSettings {
	return domain.TrainerSettings{
		Enabled:          c.Enabled,
		DailyLimit:       c.DailyLimit,
		MinRiskThreshold: c.MinRiskThreshold,
		Timezone:         c.Timezone,
		QuietHoursStart:  c.QuietHoursStart,
		QuietHoursEnd:    c.QuietHoursEnd,
		Channel:          domain.Channel(c.Channel),
	}
}

func templateOverrides(tcs []config.TemplateConfig) []nudge.Template {
	out := make([]nudge.Template, 0, len(tcs))
	for _, t := range tcs {
		out = append(out, nudge.Template{
			ID:         t.ID,
			Category:   domain.NudgeType(t.Category),
			Body:       t.Body,
			MaxPerWeek: t.MaxPerWeek,
		})
	}
	return out
}

// newGenerator returns nil when AI drafting is disabled.
func newGenerator(ctx context.Context, c config.AIConfig) (ai.Generator, error) {
	if !c.Enabled {
		return nil, nil
	}
	opts := ai.Options{Model: c.Model, MaxTokens: c.MaxTokens, Temperature: c.Temperature}
	switch c.Provider {
	case "bedrock":
		opts.Model = c.BedrockModelID
		g, err := ai.NewBedrockGenerator(ctx, c.Region, opts)
		if err != nil {
			return nil, fmt.Errorf("bedrock generator: %w", err)
		}
		logger.Info("AI drafts enabled", "provider", "bedrock", "model", c.BedrockModelID)
		return g, nil
	default:
		logger.Info("AI drafts enabled", "provider", "gateway", "model", c.Model)
		return ai.NewGatewayGenerator(c.GatewayURL, c.APIKey, c.Timeout(), opts), nil
	}
}

func newRouter(ctx context.Context, cfg *config.Config) (*messaging.Router, error) {
	senders := make(map[domain.Channel]messaging.Sender, 2)
	if cfg.GHL.Enabled {
		senders[domain.ChannelSMS] = messaging.NewGHLSender(ctx, messaging.GHLOptions{
			BaseURL:      cfg.GHL.BaseURL,
			APIVersion:   cfg.GHL.APIVersion,
			LocationID:   cfg.GHL.LocationID,
			APIKey:       cfg.GHL.APIKey,
			ClientID:     cfg.GHL.ClientID,
			ClientSecret: cfg.GHL.ClientSecret,
			RefreshToken: cfg.GHL.RefreshToken,
			TokenURL:     cfg.GHL.TokenURL,
			Timeout:      cfg.GHL.Timeout(),
			MaxRetries:   cfg.GHL.MaxRetries,
		})
	}
	if cfg.SES.Enabled {
		s, err := messaging.NewSESSender(ctx, messaging.SESOptions{
			Region:    cfg.SES.Region,
			AccessKey: cfg.SES.AccessKey,
			SecretKey: cfg.SES.SecretKey,
			FromEmail: cfg.SES.FromEmail,
			FromName:  cfg.SES.FromName,
			Subject:   cfg.SES.Subject,
		})
		if err != nil {
			return nil, fmt.Errorf("ses sender: %w", err)
		}
		senders[domain.ChannelEmail] = s
	}
	r := messaging.NewRouter(senders)
	logger.Info("messaging channels configured", "channels", r.Channels())
	return r, nil
}

func newRedis(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return redis.NewClient(&redis.Options{Addr: url})
	}
	return redis.NewClient(opts)
}
