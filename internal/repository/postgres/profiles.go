package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/coach-nudge/internal/domain"
)

// ProfileRepo implements pipeline.ProfileRepository.
type ProfileRepo struct{ db *sqlx.DB }

// NewProfileRepo creates a Postgres-backed risk profile repository.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo { return &ProfileRepo{db: db} }

const upsertProfileSQL = `
	INSERT INTO client_risk_profiles
		(client_id, trainer_id, risk_score, days_since_last_message, days_since_last_booking,
		 eligibility, recommended_nudge_type, urgency_level, evaluated_at)
	VALUES
		(:client_id, :trainer_id, :risk_score, :days_since_last_message, :days_since_last_booking,
		 :eligibility, :recommended_nudge_type, :urgency_level, :evaluated_at)
	ON CONFLICT (client_id) DO UPDATE SET
		trainer_id = EXCLUDED.trainer_id,
		risk_score = EXCLUDED.risk_score,
		days_since_last_message = EXCLUDED.days_since_last_message,
		days_since_last_booking = EXCLUDED.days_since_last_booking,
		eligibility = EXCLUDED.eligibility,
		recommended_nudge_type = EXCLUDED.recommended_nudge_type,
		urgency_level = EXCLUDED.urgency_level,
		evaluated_at = EXCLUDED.evaluated_at`

// UpsertProfiles writes all profiles in one transaction so a run never leaves
// a half-updated snapshot behind.
func (r *ProfileRepo) UpsertProfiles(ctx context.Context, profiles []domain.RiskProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert profiles: %w", err)
	}
	defer tx.Rollback()

	for _, p := range profiles {
		if _, err := tx.NamedExecContext(ctx, upsertProfileSQL, p); err != nil {
			return fmt.Errorf("upsert profile %s: %w", p.ClientID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert profiles: %w", err)
	}
	return nil
}

func (r *ProfileRepo) ListProfiles(ctx context.Context, trainerID string, minScore int) ([]domain.RiskProfile, error) {
	var out []domain.RiskProfile
	err := r.db.SelectContext(ctx, &out, `
		SELECT client_id, trainer_id, risk_score, days_since_last_message, days_since_last_booking,
		       eligibility, COALESCE(recommended_nudge_type,'') AS recommended_nudge_type,
		       urgency_level, evaluated_at
		FROM client_risk_profiles
		WHERE trainer_id = $1 AND risk_score >= $2
		ORDER BY risk_score DESC, client_id
	`, trainerID, minScore)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}
