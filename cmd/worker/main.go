package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ignite/coach-nudge/internal/app"
	"github.com/ignite/coach-nudge/internal/config"
	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pkg/distlock"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
	"github.com/ignite/coach-nudge/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	once := flag.Bool("once", false, "run a single scoring pass and exit")
	trainerID := flag.String("trainer", "", "with -once, score only this trainer")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := logger.Configure(logger.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		RedactPII: cfg.Logging.Redact(),
	}); err != nil {
		logger.Error("failed to configure logger", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	scheduler := worker.NewNudgeScheduler(a.Runner, a.Settings, a.Locks,
		cfg.Scheduler.Interval(), cfg.TrainerDefaults.Enabled)

	if *once {
		code := runOnce(ctx, a, scheduler, *trainerID)
		a.Close()
		os.Exit(code)
	}

	dispatcher := worker.NewDispatchWorker(a.Dispatcher, a.Locks, cfg.Dispatcher.Interval())
	retention := worker.NewCampaignRetentionWorker(a.Campaigns,
		time.Duration(cfg.Reports.RetentionDays)*24*time.Hour)

	var wg sync.WaitGroup
	for _, start := range []func(context.Context){scheduler.Start, dispatcher.Start, retention.Start} {
		wg.Add(1)
		go func(start func(context.Context)) {
			defer wg.Done()
			start(ctx)
		}(start)
	}
	logger.Printf("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("Shutting down worker...")
	cancel()
	wg.Wait()
	logger.Printf("Worker stopped")
}

// runOnce scores one trainer, or every enabled trainer when trainerID is
// empty, and returns the process exit code. A single trainer's report is
// printed to stdout.
func runOnce(ctx context.Context, a *app.App, s *worker.NudgeScheduler, trainerID string) int {
	if trainerID == "" {
		if sum := s.Tick(ctx); sum.Failed > 0 {
			return 1
		}
		return 0
	}

	var report domain.RunReport
	err := distlock.WithLock(ctx, a.Locks.New(distlock.TrainerRunKey(trainerID)), func(ctx context.Context) error {
		var err error
		report, err = a.Runner.RunOnce(ctx, trainerID)
		return err
	})
	if err != nil {
		logger.Error("run failed", "trainer_id", trainerID, "error", err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return 1
	}
	return 0
}
