// Package collector gathers the recency and activity facts the scorer needs
// for every messageable client of a trainer. It only reads.
package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
)

// Store is the read side of the client data the collector depends on.
type Store interface {
	// ListActiveClients returns the trainer's clients whose consent status is
	// active and who are not archived.
	ListActiveClients(ctx context.Context, trainerID string) ([]domain.Client, error)

	// ListBookings returns every booking for the given clients, keyed by client.
	ListBookings(ctx context.Context, trainerID string, clientIDs []string) (map[string][]domain.Booking, error)

	// ListMessagesSince returns messages created at or after since, keyed by client.
	ListMessagesSince(ctx context.Context, trainerID string, clientIDs []string, since time.Time) (map[string][]domain.Message, error)

	// LastOutboundAt returns the newest outbound message time per client.
	LastOutboundAt(ctx context.Context, trainerID string, clientIDs []string) (map[string]time.Time, error)
}

// Collector builds ClientFacts snapshots.
type Collector struct {
	store      Store
	windowDays int
}

// New creates a collector that loads message history for the trailing
// windowDays.
func New(store Store, windowDays int) *Collector {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Collector{store: store, windowDays: windowDays}
}

// Collect returns one snapshot per active client. Any store error aborts the
// whole collection so the trainer's run can be retried later.
func (c *Collector) Collect(ctx context.Context, trainerID string, now time.Time) ([]domain.ClientFacts, error) {
	clients, err := c.store.ListActiveClients(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	active := make([]domain.Client, 0, len(clients))
	for _, cl := range clients {
		if cl.ConsentStatus.CanMessage() {
			active = append(active, cl)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	ids := make([]string, len(active))
	for i, cl := range active {
		ids[i] = cl.ID
	}

	bookings, err := c.store.ListBookings(ctx, trainerID, ids)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	since := now.Add(-time.Duration(c.windowDays) * 24 * time.Hour)
	messages, err := c.store.ListMessagesSince(ctx, trainerID, ids, since)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	lastOut, err := c.store.LastOutboundAt(ctx, trainerID, ids)
	if err != nil {
		return nil, fmt.Errorf("last outbound: %w", err)
	}

	facts := make([]domain.ClientFacts, 0, len(active))
	for _, cl := range active {
		facts = append(facts, Snapshot(cl, bookings[cl.ID], messages[cl.ID], lastOut[cl.ID]))
	}
	return facts, nil
}

// Snapshot assembles facts for one client. Histories are copied and sorted
// oldest first; LastBookingAt is the latest scheduled session of any status.
func Snapshot(cl domain.Client, bookings []domain.Booking, messages []domain.Message, lastOutbound time.Time) domain.ClientFacts {
	f := domain.ClientFacts{
		ClientID:       cl.ID,
		TrainerID:      cl.TrainerID,
		FirstName:      cl.FirstName,
		LastName:       cl.LastName,
		BookingHistory: append([]domain.Booking(nil), bookings...),
		MessageHistory: append([]domain.Message(nil), messages...),
		Tags:           append([]string(nil), cl.Tags...),
	}
	sort.Slice(f.BookingHistory, func(i, j int) bool {
		return f.BookingHistory[i].ScheduledAt.Before(f.BookingHistory[j].ScheduledAt)
	})
	sort.Slice(f.MessageHistory, func(i, j int) bool {
		return f.MessageHistory[i].CreatedAt.Before(f.MessageHistory[j].CreatedAt)
	})

	if n := len(f.BookingHistory); n > 0 {
		last := f.BookingHistory[n-1].ScheduledAt
		f.LastBookingAt = &last
	}

	// Outbound messages inside the window may be newer than the store's
	// aggregate if they arrived between the two queries.
	for _, m := range f.MessageHistory {
		if m.Direction == "outbound" && m.CreatedAt.After(lastOutbound) {
			lastOutbound = m.CreatedAt
		}
	}
	if !lastOutbound.IsZero() {
		t := lastOutbound
		f.LastMessageSentAt = &t
	}
	return f
}
