package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pkg/distlock"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

// DefaultDispatchInterval is how often due campaigns are sent.
const DefaultDispatchInterval = 5 * time.Minute

// DueDispatcher sends campaigns whose send time has passed.
type DueDispatcher interface {
	DispatchDue(ctx context.Context) (domain.DispatchReport, error)
}

// DispatchWorker runs the dispatcher on a ticker under a single global lock.
type DispatchWorker struct {
	dispatcher DueDispatcher
	locks      LockFactory
	interval   time.Duration
}

// NewDispatchWorker creates a dispatch worker.
func NewDispatchWorker(d DueDispatcher, locks LockFactory, interval time.Duration) *DispatchWorker {
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}
	return &DispatchWorker{dispatcher: d, locks: locks, interval: interval}
}

// Start blocks until ctx is cancelled.
func (w *DispatchWorker) Start(ctx context.Context) {
	logger.Printf("[DispatchWorker] Starting (interval=%s)", w.interval)

	w.Tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Printf("[DispatchWorker] Stopping")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one dispatch pass if no other worker is dispatching.
func (w *DispatchWorker) Tick(ctx context.Context) (domain.DispatchReport, error) {
	var report domain.DispatchReport
	err := distlock.WithLock(ctx, w.locks.New(distlock.DispatchKey), func(ctx context.Context) error {
		var err error
		report, err = w.dispatcher.DispatchDue(ctx)
		return err
	})
	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		logger.Debug("[DispatchWorker] another worker is dispatching")
	case err != nil:
		logger.Error("[DispatchWorker] dispatch pass failed", "error", err)
	}
	return report, err
}
