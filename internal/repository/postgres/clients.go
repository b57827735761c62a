package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pipeline"
)

// ClientRepo reads clients, bookings and messages. It implements
// collector.Store and pipeline.ClientRepository.
type ClientRepo struct{ db *sqlx.DB }

// NewClientRepo creates a Postgres-backed client repository.
func NewClientRepo(db *sqlx.DB) *ClientRepo { return &ClientRepo{db: db} }

type clientRow struct {
	ID            string         `db:"id"`
	TrainerID     string         `db:"trainer_id"`
	FirstName     string         `db:"first_name"`
	LastName      string         `db:"last_name"`
	Email         string         `db:"email"`
	Phone         string         `db:"phone"`
	GHLContactID  string         `db:"ghl_contact_id"`
	ConsentStatus string         `db:"consent_status"`
	Tags          pq.StringArray `db:"tags"`
}

func (r clientRow) toDomain() domain.Client {
	return domain.Client{
		ID:            r.ID,
		TrainerID:     r.TrainerID,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		Phone:         r.Phone,
		GHLContactID:  r.GHLContactID,
		ConsentStatus: domain.ConsentStatus(r.ConsentStatus),
		Tags:          []string(r.Tags),
	}
}

const clientColumns = `
	id, trainer_id, COALESCE(first_name,'') AS first_name, COALESCE(last_name,'') AS last_name,
	COALESCE(email,'') AS email, COALESCE(phone,'') AS phone,
	COALESCE(ghl_contact_id,'') AS ghl_contact_id, consent_status,
	COALESCE(tags, '{}') AS tags`

func (r *ClientRepo) ListActiveClients(ctx context.Context, trainerID string) ([]domain.Client, error) {
	var rows []clientRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT`+clientColumns+`
		FROM clients
		WHERE trainer_id = $1 AND consent_status = $2 AND archived_at IS NULL
		ORDER BY id
	`, trainerID, string(domain.ConsentActive))
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	out := make([]domain.Client, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *ClientRepo) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var row clientRow
	err := r.db.GetContext(ctx, &row, `SELECT`+clientColumns+` FROM clients WHERE id = $1`, clientID)
	if err == sql.ErrNoRows {
		return nil, pipeline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	c := row.toDomain()
	return &c, nil
}

func (r *ClientRepo) ListBookings(ctx context.Context, trainerID string, clientIDs []string) (map[string][]domain.Booking, error) {
	var rows []domain.Booking
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, client_id, scheduled_at, status, created_at
		FROM bookings
		WHERE trainer_id = $1 AND client_id = ANY($2)
		ORDER BY scheduled_at
	`, trainerID, pq.Array(clientIDs))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make(map[string][]domain.Booking)
	for _, b := range rows {
		out[b.ClientID] = append(out[b.ClientID], b)
	}
	return out, nil
}

func (r *ClientRepo) ListMessagesSince(ctx context.Context, trainerID string, clientIDs []string, since time.Time) (map[string][]domain.Message, error) {
	var rows []domain.Message
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, client_id, direction, created_at
		FROM messages
		WHERE trainer_id = $1 AND client_id = ANY($2) AND created_at >= $3
		ORDER BY created_at
	`, trainerID, pq.Array(clientIDs), since)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make(map[string][]domain.Message)
	for _, m := range rows {
		out[m.ClientID] = append(out[m.ClientID], m)
	}
	return out, nil
}

func (r *ClientRepo) LastOutboundAt(ctx context.Context, trainerID string, clientIDs []string) (map[string]time.Time, error) {
	var rows []struct {
		ClientID string    `db:"client_id"`
		LastAt   time.Time `db:"last_at"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT client_id, MAX(created_at) AS last_at
		FROM messages
		WHERE trainer_id = $1 AND client_id = ANY($2) AND direction = 'outbound'
		GROUP BY client_id
	`, trainerID, pq.Array(clientIDs))
	if err != nil {
		return nil, fmt.Errorf("last outbound: %w", err)
	}
	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.ClientID] = row.LastAt
	}
	return out, nil
}
