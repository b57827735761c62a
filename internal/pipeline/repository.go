package pipeline

import (
	"context"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
)

// SettingsRepository reads per-trainer nudge configuration.
type SettingsRepository interface {
	// GetSettings returns ErrNotFound when the trainer has no settings row.
	GetSettings(ctx context.Context, trainerID string) (*domain.TrainerSettings, error)

	// ListEnabledTrainers returns trainers that should be scored this interval.
	// Trainers without a settings row are included when defaultEnabled is true.
	ListEnabledTrainers(ctx context.Context, defaultEnabled bool) ([]string, error)
}

// ProfileRepository persists the latest risk snapshot per client.
type ProfileRepository interface {
	// UpsertProfiles overwrites the stored profile of every given client.
	UpsertProfiles(ctx context.Context, profiles []domain.RiskProfile) error

	// ListProfiles returns the trainer's profiles with riskScore >= minScore,
	// highest score first.
	ListProfiles(ctx context.Context, trainerID string, minScore int) ([]domain.RiskProfile, error)
}

// CampaignRepository stores scheduled nudges and their dispatch outcome.
// Implementations must be safe for concurrent use.
type CampaignRepository interface {
	// CreateCampaign inserts a scheduled campaign.
	CreateCampaign(ctx context.Context, c *domain.ScheduledCampaign) error

	// ListDue returns scheduled campaigns with scheduledFor <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledCampaign, error)

	// MarkSent moves a campaign from scheduled to sent and records the nudge
	// in the client's history for the campaign's category. Returns
	// ErrInvalidTransition if it is no longer scheduled, ErrNotFound if absent.
	MarkSent(ctx context.Context, id, externalID string, at time.Time) error

	// MarkFailed moves a campaign from scheduled to failed.
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error

	// ListCampaigns returns the trainer's campaigns, newest first. An empty
	// status matches every status.
	ListCampaigns(ctx context.Context, trainerID string, status domain.CampaignStatus, limit int) ([]domain.ScheduledCampaign, error)

	// CountCreatedSince counts campaigns created for the trainer at or after since.
	CountCreatedSince(ctx context.Context, trainerID string, since time.Time) (int, error)

	// PendingClients returns the clients that still have a scheduled campaign.
	PendingClients(ctx context.Context, trainerID string) (map[string]bool, error)
}

// HistoryRepository reads the per (client, category) nudge history.
type HistoryRepository interface {
	// LastNudged returns last-nudge times keyed by nudge.HistoryKey.
	LastNudged(ctx context.Context, clientIDs []string) (map[string]time.Time, error)
}

// ClientRepository looks up single clients for dispatch and drafting.
type ClientRepository interface {
	// GetClient returns ErrNotFound when the client does not exist.
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
}
