package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/nudge"
)

// memRepo implements every repository interface in memory.
type memRepo struct {
	mu           sync.Mutex
	settings     map[string]*domain.TrainerSettings
	clients      map[string]domain.Client
	bookings     map[string][]domain.Booking
	messages     map[string][]domain.Message
	lastOutbound map[string]time.Time
	profiles     map[string]domain.RiskProfile
	campaigns    []*domain.ScheduledCampaign
	history      map[string]time.Time
	upserts      int

	collectErr error
	createErr  map[string]error
	dueErr     error
	lookupErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{
		settings:     map[string]*domain.TrainerSettings{},
		clients:      map[string]domain.Client{},
		bookings:     map[string][]domain.Booking{},
		messages:     map[string][]domain.Message{},
		lastOutbound: map[string]time.Time{},
		profiles:     map[string]domain.RiskProfile{},
		history:      map[string]time.Time{},
		createErr:    map[string]error{},
	}
}

func (m *memRepo) GetSettings(ctx context.Context, trainerID string) (*domain.TrainerSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[trainerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) ListEnabledTrainers(ctx context.Context, defaultEnabled bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, c := range m.clients {
		s, ok := m.settings[c.TrainerID]
		if (ok && s.Enabled) || (!ok && defaultEnabled) {
			seen[c.TrainerID] = true
		}
	}
	var out []string
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRepo) ListActiveClients(ctx context.Context, trainerID string) ([]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collectErr != nil {
		return nil, m.collectErr
	}
	var out []domain.Client
	for _, c := range m.clients {
		if c.TrainerID == trainerID && c.ConsentStatus == domain.ConsentActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListBookings(ctx context.Context, trainerID string, ids []string) (map[string][]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]domain.Booking{}
	for _, id := range ids {
		out[id] = m.bookings[id]
	}
	return out, nil
}

func (m *memRepo) ListMessagesSince(ctx context.Context, trainerID string, ids []string, since time.Time) (map[string][]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]domain.Message{}
	for _, id := range ids {
		for _, msg := range m.messages[id] {
			if !msg.CreatedAt.Before(since) {
				out[id] = append(out[id], msg)
			}
		}
	}
	return out, nil
}

func (m *memRepo) LastOutboundAt(ctx context.Context, trainerID string, ids []string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]time.Time{}
	for _, id := range ids {
		if t, ok := m.lastOutbound[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (m *memRepo) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	c, ok := m.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *memRepo) UpsertProfiles(ctx context.Context, ps []domain.RiskProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	for _, p := range ps {
		m.profiles[p.ClientID] = p
	}
	return nil
}

func (m *memRepo) ListProfiles(ctx context.Context, trainerID string, minScore int) ([]domain.RiskProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RiskProfile
	for _, p := range m.profiles {
		if p.TrainerID == trainerID && p.RiskScore >= minScore {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	return out, nil
}

func (m *memRepo) CreateCampaign(ctx context.Context, c *domain.ScheduledCampaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[c.ClientID]; err != nil {
		return err
	}
	c.ID = fmt.Sprintf("cmp-%d", len(m.campaigns)+1)
	cp := *c
	m.campaigns = append(m.campaigns, &cp)
	return nil
}

func (m *memRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledCampaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	var out []domain.ScheduledCampaign
	for _, c := range m.campaigns {
		if c.Status == domain.CampaignScheduled && !c.ScheduledFor.After(now) && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memRepo) transition(id string, to domain.CampaignStatus, apply func(*domain.ScheduledCampaign)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.campaigns {
		if c.ID != id {
			continue
		}
		if !domain.CanTransition(c.Status, to) {
			return ErrInvalidTransition
		}
		c.Status = to
		apply(c)
		return nil
	}
	return ErrNotFound
}

func (m *memRepo) MarkSent(ctx context.Context, id, externalID string, at time.Time) error {
	return m.transition(id, domain.CampaignSent, func(c *domain.ScheduledCampaign) {
		c.ExternalID = externalID
		c.SentAt = &at
		m.history[nudge.HistoryKey(c.ClientID, c.Category)] = at
	})
}

func (m *memRepo) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	return m.transition(id, domain.CampaignFailed, func(c *domain.ScheduledCampaign) {
		c.FailureReason = reason
	})
}

func (m *memRepo) ListCampaigns(ctx context.Context, trainerID string, status domain.CampaignStatus, limit int) ([]domain.ScheduledCampaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduledCampaign
	for _, c := range m.campaigns {
		if c.TrainerID == trainerID && (status == "" || c.Status == status) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memRepo) CountCreatedSince(ctx context.Context, trainerID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.campaigns {
		if c.TrainerID == trainerID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) PendingClients(ctx context.Context, trainerID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for _, c := range m.campaigns {
		if c.TrainerID == trainerID && c.Status == domain.CampaignScheduled {
			out[c.ClientID] = true
		}
	}
	return out, nil
}

func (m *memRepo) LastNudged(ctx context.Context, ids []string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]time.Time{}
	for k, v := range m.history {
		out[k] = v
	}
	return out, nil
}

func (m *memRepo) campaignsFor(clientID string) []*domain.ScheduledCampaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ScheduledCampaign
	for _, c := range m.campaigns {
		if c.ClientID == clientID {
			out = append(out, c)
		}
	}
	return out
}
