package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/messaging"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

// Failure reasons recorded on failed campaigns.
const (
	ReasonClientNotFound = "client_not_found"
	ReasonOptedOut       = "opted_out"
	ReasonNoAddress      = "missing_address"
	ReasonNoRoute        = "no_channel"
	ReasonTimeout        = "timeout"
	ReasonSendError      = "send_error"
)

// Sender delivers a campaign and returns the provider's message ID.
type Sender interface {
	Send(ctx context.Context, client *domain.Client, c *domain.ScheduledCampaign) (string, error)
}

// Dispatcher sends due campaigns. Each campaign is attempted once: a failed
// campaign stays failed, and the client resurfaces through a later scoring
// run instead.
type Dispatcher struct {
	campaigns   CampaignRepository
	clients     ClientRepository
	sender      Sender
	batchSize   int
	sendTimeout time.Duration
	now         func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(campaigns CampaignRepository, clients ClientRepository, sender Sender, batchSize int, sendTimeout time.Duration) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 200
	}
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		campaigns:   campaigns,
		clients:     clients,
		sender:      sender,
		batchSize:   batchSize,
		sendTimeout: sendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// DispatchDue processes up to one batch of campaigns whose send time has
// passed. Per-campaign failures are recorded and never stop the pass.
func (d *Dispatcher) DispatchDue(ctx context.Context) (domain.DispatchReport, error) {
	start := d.now()
	report := domain.DispatchReport{StartedAt: start, Reasons: map[string]int{}}

	due, err := d.campaigns.ListDue(ctx, start, d.batchSize)
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		d.dispatchOne(ctx, &due[i], &report)
	}

	report.DurationMS = d.now().Sub(start).Milliseconds()
	if report.Due > 0 {
		logger.Info("[Dispatcher] pass complete",
			"due", report.Due, "sent", report.Sent, "failed", report.Failed,
			"conflicts", report.Conflicts, "duration_ms", report.DurationMS)
	}
	return report, ctx.Err()
}

func (d *Dispatcher) dispatchOne(ctx context.Context, c *domain.ScheduledCampaign, report *domain.DispatchReport) {
	client, err := d.clients.GetClient(ctx, c.ClientID)
	if errors.Is(err, ErrNotFound) {
		logger.Warn("[Dispatcher] campaign references missing client", "campaign_id", c.ID, "client_id", c.ClientID)
		d.fail(ctx, c, ReasonClientNotFound, report)
		return
	}
	if err != nil {
		// Store trouble: leave the campaign scheduled for the next pass.
		logger.Error("[Dispatcher] client lookup failed", "campaign_id", c.ID, "error", err)
		return
	}

	if !client.ConsentStatus.CanMessage() {
		d.fail(ctx, c, ReasonOptedOut, report)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	externalID, err := d.sender.Send(sendCtx, client, c)
	cancel()
	if err != nil {
		reason := failureReason(err)
		logger.Warn("[Dispatcher] send failed", "campaign_id", c.ID, "channel", c.Channel, "reason", reason, "error", err)
		d.fail(ctx, c, reason, report)
		return
	}

	if err := d.campaigns.MarkSent(ctx, c.ID, externalID, d.now()); err != nil {
		d.recordTransitionError(c, err, report)
		return
	}
	report.Sent++
}

func (d *Dispatcher) fail(ctx context.Context, c *domain.ScheduledCampaign, reason string, report *domain.DispatchReport) {
	if err := d.campaigns.MarkFailed(ctx, c.ID, reason, d.now()); err != nil {
		d.recordTransitionError(c, err, report)
		return
	}
	report.Failed++
	report.Reasons[reason]++
}

func (d *Dispatcher) recordTransitionError(c *domain.ScheduledCampaign, err error, report *domain.DispatchReport) {
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
		report.Conflicts++
		logger.Warn("[Dispatcher] campaign changed underneath us", "campaign_id", c.ID, "error", err)
		return
	}
	logger.Error("[Dispatcher] failed to record outcome", "campaign_id", c.ID, "error", err)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, messaging.ErrOptedOut):
		return ReasonOptedOut
	case errors.Is(err, messaging.ErrMissingAddress):
		return ReasonNoAddress
	case errors.Is(err, messaging.ErrNoRoute):
		return ReasonNoRoute
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	}
	return ReasonSendError
}
