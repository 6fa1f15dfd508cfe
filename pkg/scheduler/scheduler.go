// Package scheduler runs the periodic maintenance jobs: decay, snapshots,
// event lifecycle sweeps, and retention.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/services"
)

// Scheduler owns the background tickers. One replica running the scheduler is
// enough; the jobs are idempotent, so accidental double-scheduling across
// replicas is wasteful but harmless.
type Scheduler struct {
	cfg       *config.SchedulerConfig
	cluster   *config.ClusterConfig
	retention *config.RetentionConfig

	trends *services.TrendService
	events *services.EventService
	items  *services.ItemService

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
	logger   *slog.Logger
}

// New creates a Scheduler.
func New(cfg *config.SchedulerConfig, cluster *config.ClusterConfig, retention *config.RetentionConfig,
	trends *services.TrendService, events *services.EventService, items *services.ItemService) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		cluster:   cluster,
		retention: retention,
		trends:    trends,
		events:    events,
		items:     items,
		stopCh:    make(chan struct{}),
		logger:    slog.With("component", "scheduler"),
	}
}

// Start launches the job loops. Safe to call multiple times.
func (s *Scheduler) Start(ctx context.Context) {
	if s.started {
		s.logger.Warn("Scheduler already started, ignoring duplicate Start call")
		return
	}
	s.started = true

	s.spawn(ctx, "decay", s.cfg.DecayInterval, s.runDecay)
	s.spawn(ctx, "snapshot", s.cfg.SnapshotInterval, s.runSnapshot)
	s.spawn(ctx, "lifecycle", s.cfg.LifecycleInterval, s.runLifecycle)
	s.spawn(ctx, "retention", s.cfg.RetentionInterval, s.runRetention)

	s.logger.Info("Scheduler started",
		"decay_interval", s.cfg.DecayInterval,
		"snapshot_interval", s.cfg.SnapshotInterval,
		"lifecycle_interval", s.cfg.LifecycleInterval,
		"retention_interval", s.cfg.RetentionInterval)
}

// Stop signals all job loops to stop and waits for them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) spawn(ctx context.Context, name string, interval time.Duration, job func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := job(ctx); err != nil {
					s.logger.Error("Scheduled job failed", "job", name, "error", err)
				}
			}
		}
	}()
}

func (s *Scheduler) runDecay(ctx context.Context) error {
	return s.trends.ApplyDecay(ctx, time.Now().UTC())
}

func (s *Scheduler) runSnapshot(ctx context.Context) error {
	now := time.Now().UTC().Truncate(time.Minute)
	return s.trends.RecordSnapshots(ctx, now, func(ctx context.Context, trendID string) (int, error) {
		return s.events.EventCountSince(ctx, trendID, now.Add(-24*time.Hour))
	})
}

func (s *Scheduler) runLifecycle(ctx context.Context) error {
	_, _, err := s.events.SweepLifecycles(ctx, s.cluster.FadeAfter, s.cluster.ArchiveAfter)
	return err
}

func (s *Scheduler) runRetention(ctx context.Context) error {
	noiseCutoff := time.Now().AddDate(0, 0, -s.retention.NoiseItemRetentionDays)
	purged, err := s.items.PurgeNoise(ctx, noiseCutoff)
	if err != nil {
		return err
	}

	snapshotCutoff := time.Now().AddDate(0, 0, -s.retention.SnapshotRetentionDays)
	pruned, err := s.trends.RetainSnapshots(ctx, snapshotCutoff)
	if err != nil {
		return err
	}

	if purged > 0 || pruned > 0 {
		s.logger.Info("Retention sweep complete",
			"noise_items_purged", purged, "snapshots_pruned", pruned)
	}
	return nil
}
