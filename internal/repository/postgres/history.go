package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/nudge"
)

// HistoryRepo implements pipeline.HistoryRepository.
type HistoryRepo struct{ db *sqlx.DB }

// NewHistoryRepo creates a Postgres-backed nudge history repository.
func NewHistoryRepo(db *sqlx.DB) *HistoryRepo { return &HistoryRepo{db: db} }

func (r *HistoryRepo) LastNudged(ctx context.Context, clientIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	if len(clientIDs) == 0 {
		return out, nil
	}
	var rows []domain.NudgeHistory
	err := r.db.SelectContext(ctx, &rows, `
		SELECT client_id, category, last_nudged_at
		FROM nudge_history
		WHERE client_id = ANY($1)
	`, pq.Array(clientIDs))
	if err != nil {
		return nil, fmt.Errorf("list nudge history: %w", err)
	}
	for _, h := range rows {
		out[nudge.HistoryKey(h.ClientID, h.Category)] = h.LastNudgedAt
	}
	return out, nil
}

const recordHistorySQL = `
	INSERT INTO nudge_history (client_id, category, last_nudged_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (client_id, category) DO UPDATE SET
		last_nudged_at = GREATEST(nudge_history.last_nudged_at, EXCLUDED.last_nudged_at)`
