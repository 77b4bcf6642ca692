package radar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uniradar/uniradar/internal/store"
	"github.com/uniradar/uniradar/pkg/platform"
)

// trendWindow is the trailing history the trend computation reads.
const trendWindow = 14 * 24 * time.Hour

// Fetcher is the slice of the platform client the snapshot and live
// cache jobs consume.
type Fetcher interface {
	GameDetails(ctx context.Context, universeID int64) (platform.GameDetails, error)
	Votes(ctx context.Context, universeID int64) (platform.Votes, error)
	FavoritesCount(ctx context.Context, universeID int64) (platform.Favorites, error)
}

// Result counts per-universe outcomes of one batch run.
type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Snapshotter appends one hourly metrics row per tracked universe and
// recomputes its trend scores. One universe failing never aborts the
// batch; it is counted, logged, and skipped.
type Snapshotter struct {
	store  store.Store
	client Fetcher
	log    *slog.Logger
	now    func() time.Time
}

// NewSnapshotter creates the hourly snapshot job.
func NewSnapshotter(s store.Store, client Fetcher, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{store: s, client: client, log: logger, now: time.Now}
}

// Run snapshots every tracked universe once. The returned error is
// non-nil only when the tracked set itself cannot be listed; upstream
// and per-universe store failures surface through Result.Failed.
func (s *Snapshotter) Run(ctx context.Context) (Result, error) {
	ids, err := s.store.ListTrackedIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list tracked universes: %w", err)
	}

	ts := s.now().UTC().Truncate(time.Hour)
	s.log.Info("hourly snapshot starting", "universes", len(ids), "ts", ts)

	var res Result
	for _, id := range ids {
		if err := s.snapshotOne(ctx, id, ts); err != nil {
			res.Failed++
			s.log.Warn("snapshot failed", "universe_id", id, "error", err)
			continue
		}
		res.Success++
	}

	s.log.Info("hourly snapshot complete", "success", res.Success, "failed", res.Failed)
	return res, nil
}

// snapshotOne runs one universe's full pipeline: fetch, metadata
// upsert, hourly append, window read-back, trend compute, score
// replace. The writes share one transaction so a crash cannot leave a
// snapshot without its trend row.
func (s *Snapshotter) snapshotOne(ctx context.Context, id int64, ts time.Time) error {
	m, err := fetchMetrics(ctx, s.client, id)
	if err != nil {
		return err
	}

	return s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.UpsertMeta(ctx, id, store.UniverseMeta{
			Name:        m.details.Name,
			Description: m.details.Description,
			ServerSize:  m.details.ServerSize,
		}); err != nil {
			return err
		}

		if err := tx.AppendHourlyStats(ctx, store.HourlyStats{
			TS:             ts,
			UniverseID:     id,
			Playing:        m.details.Playing,
			VisitsTotal:    m.details.VisitsTotal,
			FavoritesTotal: m.favorites.Total,
			UpVotes:        m.votes.Up,
			DownVotes:      m.votes.Down,
		}); err != nil {
			return err
		}

		window, err := tx.StatsWindow(ctx, id, ts.Add(-trendWindow))
		if err != nil {
			return err
		}

		sc := ComputeScores(window)
		return tx.ReplaceTrendScore(ctx, store.TrendScore{
			TS:         ts,
			UniverseID: id,
			DZ:         sc.DZ,
			Accel:      sc.Accel,
			Sustain:    sc.Sustain,
			Wilson:     sc.Wilson,
			RankBucket: sc.RankBucket,
		})
	})
}

type metrics struct {
	details   platform.GameDetails
	votes     platform.Votes
	favorites platform.Favorites
}

// fetchMetrics fires the three independent sub-fetches for one universe
// and joins them. A failure in one does not cancel the others already
// in flight; the first failure wins after the join.
func fetchMetrics(ctx context.Context, c Fetcher, id int64) (metrics, error) {
	var (
		m                metrics
		dErr, vErr, fErr error
		wg               sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		m.details, dErr = c.GameDetails(ctx, id)
	}()
	go func() {
		defer wg.Done()
		m.votes, vErr = c.Votes(ctx, id)
	}()
	go func() {
		defer wg.Done()
		m.favorites, fErr = c.FavoritesCount(ctx, id)
	}()
	wg.Wait()

	if dErr != nil {
		return m, fmt.Errorf("details: %w", dErr)
	}
	if vErr != nil {
		return m, fmt.Errorf("votes: %w", vErr)
	}
	if fErr != nil {
		return m, fmt.Errorf("favorites: %w", fErr)
	}
	return m, nil
}
