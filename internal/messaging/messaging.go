// Package messaging delivers scheduled nudges to clients over SMS
// (GoHighLevel conversations API) or email (AWS SES).
package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/coach-nudge/internal/domain"
)

var (
	// ErrOptedOut is returned when a client may no longer be messaged.
	ErrOptedOut = errors.New("client opted out of messaging")
	// ErrNoRoute is returned when no sender is configured for a channel.
	ErrNoRoute = errors.New("no sender for channel")
	// ErrMissingAddress is returned when the client lacks the contact
	// detail the channel needs.
	ErrMissingAddress = errors.New("client has no address for channel")
)

// Sender delivers one campaign to one client and returns the provider's
// message ID.
type Sender interface {
	Send(ctx context.Context, client *domain.Client, c *domain.ScheduledCampaign) (string, error)
}

// Router picks a Sender by campaign channel. It refuses to send to clients
// whose consent is no longer active, whatever the channel.
type Router struct {
	senders map[domain.Channel]Sender
}

// NewRouter creates a router. Nil senders are ignored.
func NewRouter(senders map[domain.Channel]Sender) *Router {
	r := &Router{senders: make(map[domain.Channel]Sender, len(senders))}
	for ch, s := range senders {
		if s != nil {
			r.senders[ch] = s
		}
	}
	return r
}

// Send checks consent and forwards to the channel's sender.
func (r *Router) Send(ctx context.Context, client *domain.Client, c *domain.ScheduledCampaign) (string, error) {
	if !client.ConsentStatus.CanMessage() {
		return "", ErrOptedOut
	}
	s, ok := r.senders[c.Channel]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoRoute, c.Channel)
	}
	return s.Send(ctx, client, c)
}

// Channels lists the configured channels.
func (r *Router) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
