package radar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uniradar/uniradar/internal/store"
)

// LiveCacheJob refreshes the current-values cache for every tracked
// universe, more often than the hourly series.
type LiveCacheJob struct {
	store  store.Store
	client Fetcher
	log    *slog.Logger
}

// NewLiveCacheJob creates the live cache refresh job.
func NewLiveCacheJob(s store.Store, client Fetcher, logger *slog.Logger) *LiveCacheJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveCacheJob{store: s, client: client, log: logger}
}

// Run refreshes the cache row per tracked universe. Same partial
// failure policy as the snapshot job.
func (j *LiveCacheJob) Run(ctx context.Context) (Result, error) {
	ids, err := j.store.ListTrackedIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list tracked universes: %w", err)
	}

	var res Result
	for _, id := range ids {
		if err := j.refreshOne(ctx, id); err != nil {
			res.Failed++
			j.log.Warn("live cache refresh failed", "universe_id", id, "error", err)
			continue
		}
		res.Success++
	}

	j.log.Info("live cache refresh complete", "success", res.Success, "failed", res.Failed)
	return res, nil
}

func (j *LiveCacheJob) refreshOne(ctx context.Context, id int64) error {
	m, err := fetchMetrics(ctx, j.client, id)
	if err != nil {
		return err
	}

	return j.store.UpsertLiveCache(ctx, store.LiveCache{
		UniverseID:     id,
		FetchedAt:      time.Now().UTC(),
		Playing:        m.details.Playing,
		FavoritesTotal: m.favorites.Total,
		UpVotes:        m.votes.Up,
		DownVotes:      m.votes.Down,
	})
}
