package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pipeline"
)

// SettingsRepo implements pipeline.SettingsRepository.
type SettingsRepo struct{ db *sqlx.DB }

// NewSettingsRepo creates a Postgres-backed trainer settings repository.
func NewSettingsRepo(db *sqlx.DB) *SettingsRepo { return &SettingsRepo{db: db} }

func (r *SettingsRepo) GetSettings(ctx context.Context, trainerID string) (*domain.TrainerSettings, error) {
	s := &domain.TrainerSettings{}
	err := r.db.GetContext(ctx, s, `
		SELECT trainer_id, COALESCE(trainer_name,'') AS trainer_name, enabled, daily_limit,
		       min_risk_threshold, COALESCE(timezone,'') AS timezone,
		       quiet_hours_start, quiet_hours_end, channel
		FROM trainer_nudge_settings
		WHERE trainer_id = $1
	`, trainerID)
	if err == sql.ErrNoRows {
		return nil, pipeline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trainer settings: %w", err)
	}
	return s, nil
}

func (r *SettingsRepo) ListEnabledTrainers(ctx context.Context, defaultEnabled bool) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT c.trainer_id
		FROM clients c
		LEFT JOIN trainer_nudge_settings s ON s.trainer_id = c.trainer_id
		WHERE COALESCE(s.enabled, $1)
		ORDER BY c.trainer_id
	`, defaultEnabled)
	if err != nil {
		return nil, fmt.Errorf("list enabled trainers: %w", err)
	}
	return ids, nil
}
