package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pipeline"
)

// CampaignRepo implements pipeline.CampaignRepository against PostgreSQL.
type CampaignRepo struct{ db *sqlx.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sqlx.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, trainer_id, client_id, template_id, category, channel, content,
	risk_score, priority_score, scheduled_for, status,
	COALESCE(failure_reason,'') AS failure_reason, COALESCE(external_id,'') AS external_id,
	sent_at, created_at, updated_at`

func (r *CampaignRepo) CreateCampaign(ctx context.Context, c *domain.ScheduledCampaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = domain.CampaignScheduled
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO scheduled_campaigns
			(id, trainer_id, client_id, template_id, category, channel, content,
			 risk_score, priority_score, scheduled_for, status, created_at, updated_at)
		VALUES
			(:id, :trainer_id, :client_id, :template_id, :category, :channel, :content,
			 :risk_score, :priority_score, :scheduled_for, :status, :created_at, :updated_at)
	`, c)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledCampaign, error) {
	if limit <= 0 {
		limit = 200
	}
	var out []domain.ScheduledCampaign
	err := r.db.SelectContext(ctx, &out, `
		SELECT`+campaignColumns+`
		FROM scheduled_campaigns
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for, id
		LIMIT $3
	`, string(domain.CampaignScheduled), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	return out, nil
}

func (r *CampaignRepo) MarkSent(ctx context.Context, id, externalID string, at time.Time) error {
	return r.transition(ctx, id, domain.CampaignSent, externalID, "", &at, at)
}

func (r *CampaignRepo) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	return r.transition(ctx, id, domain.CampaignFailed, "", reason, nil, at)
}

// transition applies a status change guarded on the current status, so two
// dispatchers racing on the same row cannot both record an outcome. A move to
// sent also stamps nudge_history in the same transaction.
func (r *CampaignRepo) transition(ctx context.Context, id string, to domain.CampaignStatus, externalID, reason string, sentAt *time.Time, at time.Time) error {
	if !domain.CanTransition(domain.CampaignScheduled, to) {
		return pipeline.ErrInvalidTransition
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin campaign transition: %w", err)
	}
	defer tx.Rollback()

	var row struct {
		ClientID string `db:"client_id"`
		Category string `db:"category"`
	}
	err = tx.GetContext(ctx, &row, `
		UPDATE scheduled_campaigns
		SET status = $2, external_id = NULLIF($3,''), failure_reason = NULLIF($4,''),
		    sent_at = $5, updated_at = $6
		WHERE id = $1 AND status = $7
		RETURNING client_id, category
	`, id, string(to), externalID, reason, sentAt, at, string(domain.CampaignScheduled))
	if err == sql.ErrNoRows {
		tx.Rollback()
		return r.transitionConflict(ctx, id, to)
	}
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}

	if to == domain.CampaignSent {
		if _, err := tx.ExecContext(ctx, recordHistorySQL, row.ClientID, row.Category, at); err != nil {
			return fmt.Errorf("record nudge history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit campaign transition: %w", err)
	}
	return nil
}

func (r *CampaignRepo) transitionConflict(ctx context.Context, id string, to domain.CampaignStatus) error {
	var current string
	err := r.db.GetContext(ctx, &current, `SELECT status FROM scheduled_campaigns WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return pipeline.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get campaign status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", pipeline.ErrInvalidTransition, current, to)
}

func (r *CampaignRepo) ListCampaigns(ctx context.Context, trainerID string, status domain.CampaignStatus, limit int) ([]domain.ScheduledCampaign, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT` + campaignColumns + ` FROM scheduled_campaigns WHERE trainer_id = $1`
	args := []interface{}{trainerID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, string(status))
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	var out []domain.ScheduledCampaign
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return out, nil
}

func (r *CampaignRepo) CountCreatedSince(ctx context.Context, trainerID string, since time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM scheduled_campaigns WHERE trainer_id = $1 AND created_at >= $2
	`, trainerID, since)
	if err != nil {
		return 0, fmt.Errorf("count campaigns: %w", err)
	}
	return n, nil
}

func (r *CampaignRepo) PendingClients(ctx context.Context, trainerID string) (map[string]bool, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT client_id FROM scheduled_campaigns WHERE trainer_id = $1 AND status = $2
	`, trainerID, string(domain.CampaignScheduled))
	if err != nil {
		return nil, fmt.Errorf("pending clients: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// PurgeTerminal deletes sent and failed campaigns last updated before the
// cutoff, batchSize rows at a time.
func (r *CampaignRepo) PurgeTerminal(ctx context.Context, before time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 5000
	}
	total := 0
	for {
		res, err := r.db.ExecContext(ctx, `
			DELETE FROM scheduled_campaigns
			WHERE id IN (
				SELECT id FROM scheduled_campaigns
				WHERE status IN ($1, $2) AND updated_at < $3
				LIMIT $4
			)
		`, string(domain.CampaignSent), string(domain.CampaignFailed), before, batchSize)
		if err != nil {
			return total, fmt.Errorf("purge campaigns: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("purge campaigns: %w", err)
		}
		total += int(n)
		if int(n) < batchSize || ctx.Err() != nil {
			return total, nil
		}
	}
}
