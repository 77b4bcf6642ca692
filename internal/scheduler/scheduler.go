// Package scheduler wires the periodic jobs onto cron schedules.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/uniradar/uniradar/internal/config"
	"github.com/uniradar/uniradar/internal/store"
	"github.com/uniradar/uniradar/pkg/alert"
	"github.com/uniradar/uniradar/pkg/radar"
)

// Scheduler runs the snapshot, live cache, metadata, and discovery jobs
// on their cron schedules.
type Scheduler struct {
	engine      *cron.Cron
	store       store.Store
	snapshotter *radar.Snapshotter
	liveCache   *radar.LiveCacheJob
	metadata    *radar.MetadataSync
	discovery   *radar.Discovery
	alerts      *alert.Manager
	schedule    config.ScheduleConfig
	minDZ       float64
	minVotes    int64
	log         *slog.Logger
}

// New creates a scheduler. The alert manager may have no notifiers, in
// which case breakout alerting is skipped.
func New(
	s store.Store,
	snapshotter *radar.Snapshotter,
	liveCache *radar.LiveCacheJob,
	metadata *radar.MetadataSync,
	discovery *radar.Discovery,
	alerts *alert.Manager,
	schedule config.ScheduleConfig,
	minDZ float64,
	minVotes int64,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:      cron.New(),
		store:       s,
		snapshotter: snapshotter,
		liveCache:   liveCache,
		metadata:    metadata,
		discovery:   discovery,
		alerts:      alerts,
		schedule:    schedule,
		minDZ:       minDZ,
		minVotes:    minVotes,
		log:         logger,
	}
}

// Start registers all jobs and starts the cron engine. Blocks until ctx
// is cancelled, then stops the engine and waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"snapshot", s.schedule.Snapshot, s.runSnapshot},
		{"live-cache", s.schedule.LiveCache, s.runLiveCache},
		{"metadata", s.schedule.Metadata, s.runMetadata},
		{"discovery", s.schedule.Discovery, s.runDiscovery},
	}

	for _, j := range jobs {
		j := j
		if _, err := s.engine.AddFunc(j.spec, func() { j.run(ctx) }); err != nil {
			return err
		}
		s.log.Info("job scheduled", "job", j.name, "spec", j.spec)
	}

	s.engine.Start()
	s.log.Info("scheduler started")

	<-ctx.Done()
	s.log.Info("scheduler stopping")
	<-s.engine.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) runSnapshot(ctx context.Context) {
	res, err := s.snapshotter.Run(ctx)
	if err != nil {
		s.log.Error("snapshot job failed", "error", err)
		return
	}
	if res.Success > 0 {
		s.alertBreakouts(ctx)
	}
}

// alertBreakouts notifies configured destinations about universes whose
// latest dz cleared the threshold.
func (s *Scheduler) alertBreakouts(ctx context.Context) {
	if !s.alerts.HasNotifiers() {
		return
	}

	breakouts, err := s.store.Breakouts(ctx, 20, s.minVotes)
	if err != nil {
		s.log.Error("breakout query failed", "error", err)
		return
	}

	for _, b := range breakouts {
		if b.DZ == nil || *b.DZ < s.minDZ {
			continue
		}

		name := "(unnamed)"
		if b.Name != nil {
			name = *b.Name
		}
		n := &alert.Notification{
			UniverseID: b.UniverseID,
			Name:       name,
			DZ:         *b.DZ,
			Sustain:    b.Sustain,
			Wilson:     b.Wilson,
		}
		if lc, err := s.store.GetLiveCache(ctx, b.UniverseID); err == nil {
			n.Playing = lc.Playing
		}

		if err := s.alerts.Broadcast(ctx, n); err != nil {
			s.log.Warn("breakout alert failed", "universe_id", b.UniverseID, "error", err)
			continue
		}
		s.log.Info("breakout alerted", "universe_id", b.UniverseID, "dz", *b.DZ)
	}
}

func (s *Scheduler) runLiveCache(ctx context.Context) {
	if _, err := s.liveCache.Run(ctx); err != nil {
		s.log.Error("live cache job failed", "error", err)
	}
}

func (s *Scheduler) runMetadata(ctx context.Context) {
	if _, err := s.metadata.Run(ctx); err != nil {
		s.log.Error("metadata job failed", "error", err)
	}
}

func (s *Scheduler) runDiscovery(ctx context.Context) {
	if _, err := s.discovery.Run(ctx); err != nil {
		s.log.Error("discovery job failed", "error", err)
	}
}
