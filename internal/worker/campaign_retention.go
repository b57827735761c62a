package worker

import (
	"context"
	"time"

	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

// =============================================================================
// CAMPAIGN RETENTION: removes old sent and failed campaigns
// =============================================================================
// Scheduled campaigns are never touched. Deletes run in batches so a large
// backlog never holds a long transaction.

const (
	// DefaultRetentionInterval is how often the retention cycle runs.
	DefaultRetentionInterval = 24 * time.Hour

	retentionBatchSize = 5000
)

// CampaignPurger deletes terminal campaigns last updated before a cutoff.
type CampaignPurger interface {
	PurgeTerminal(ctx context.Context, before time.Time, batchSize int) (int, error)
}

// CampaignRetentionWorker periodically purges terminal campaigns.
type CampaignRetentionWorker struct {
	purger    CampaignPurger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewCampaignRetentionWorker keeps terminal campaigns for retention.
func NewCampaignRetentionWorker(p CampaignPurger, retention time.Duration) *CampaignRetentionWorker {
	return &CampaignRetentionWorker{
		purger:    p,
		retention: retention,
		interval:  DefaultRetentionInterval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks until ctx is cancelled.
func (w *CampaignRetentionWorker) Start(ctx context.Context) {
	logger.Printf("[CampaignRetention] Starting (interval=%s, retention=%s)", w.interval, w.retention)

	w.Cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Printf("[CampaignRetention] Stopping")
			return
		case <-ticker.C:
			w.Cleanup(ctx)
		}
	}
}

// Cleanup runs one retention cycle and returns the number of rows deleted.
func (w *CampaignRetentionWorker) Cleanup(ctx context.Context) int {
	start := time.Now()
	deleted, err := w.purger.PurgeTerminal(ctx, w.now().Add(-w.retention), retentionBatchSize)
	if err != nil {
		logger.Error("[CampaignRetention] purge failed", "deleted", deleted, "error", err)
		return deleted
	}
	if deleted > 0 {
		logger.Info("[CampaignRetention] purged campaigns",
			"deleted", deleted, "duration", time.Since(start).Round(time.Millisecond).String())
	}
	return deleted
}
