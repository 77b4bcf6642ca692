package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTrackUntrack(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	require.NoError(t, db.Track(ctx, 42, ptr("Pet Empire")))
	require.NoError(t, db.Track(ctx, 43, nil))

	ids, err := db.ListTrackedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 43}, ids)

	// Untrack is a soft delete: row and metadata survive.
	require.NoError(t, db.Untrack(ctx, 42))

	ids, err = db.ListTrackedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{43}, ids)

	u, err := db.GetUniverse(ctx, 42)
	require.NoError(t, err)
	assert.False(t, u.IsTracked)
	require.NotNil(t, u.Name)
	assert.Equal(t, "Pet Empire", *u.Name)
}

func TestTrackAllReportsNewlyTracked(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	require.NoError(t, db.Track(ctx, 1, nil))

	newly, err := db.TrackAll(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, newly)

	newly, err = db.TrackAll(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, newly)
}

func TestUpsertMetaCoalesces(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	require.NoError(t, db.UpsertMeta(ctx, 10, UniverseMeta{
		Name:       ptr("Original"),
		ServerSize: ptr(int64(40)),
	}))

	// Nil fields must not wipe known values.
	require.NoError(t, db.UpsertMeta(ctx, 10, UniverseMeta{
		Description: ptr("A description"),
	}))

	u, err := db.GetUniverse(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, u.Name)
	assert.Equal(t, "Original", *u.Name)
	require.NotNil(t, u.Description)
	assert.Equal(t, "A description", *u.Description)
	require.NotNil(t, u.ServerSize)
	assert.Equal(t, int64(40), *u.ServerSize)
	assert.NotNil(t, u.LastSeenAt)
}

func TestAppendHourlyStatsIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.AppendHourlyStats(ctx, HourlyStats{
		TS: ts, UniverseID: 1, Playing: ptr(int64(100)),
	}))
	require.NoError(t, db.AppendHourlyStats(ctx, HourlyStats{
		TS: ts, UniverseID: 1, Playing: ptr(int64(999)),
	}))

	window, err := db.StatsWindow(ctx, 1, time.Time{})
	require.NoError(t, err)
	require.Len(t, window, 1)
	require.NotNil(t, window[0].Playing)
	assert.Equal(t, int64(100), *window[0].Playing)
}

func TestStatsWindowOrderedAndScoped(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order, plus a row for another universe.
	for _, h := range []int{3, 1, 2} {
		require.NoError(t, db.AppendHourlyStats(ctx, HourlyStats{
			TS: base.Add(time.Duration(h) * time.Hour), UniverseID: 1, Playing: ptr(int64(h)),
		}))
	}
	require.NoError(t, db.AppendHourlyStats(ctx, HourlyStats{
		TS: base, UniverseID: 2, Playing: ptr(int64(777)),
	}))

	window, err := db.StatsWindow(ctx, 1, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, int64(2), *window[0].Playing)
	assert.Equal(t, int64(3), *window[1].Playing)
}

func TestReplaceTrendScoreOverwrites(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	require.NoError(t, db.Track(ctx, 1, ptr("Universe One")))
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.ReplaceTrendScore(ctx, TrendScore{
		TS: ts, UniverseID: 1, DZ: ptr(1.0),
	}))
	require.NoError(t, db.ReplaceTrendScore(ctx, TrendScore{
		TS: ts, UniverseID: 1, DZ: ptr(2.0), Sustain: ptr(0.5),
	}))

	row, err := db.LatestTrendScore(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, row.DZ)
	assert.Equal(t, 2.0, *row.DZ)

	// Still exactly one row for the universe.
	breakouts, err := db.Breakouts(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, breakouts, 1)
}

func TestBreakoutsRankedByLatestDZ(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	base := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)

	for id, dz := range map[int64]float64{1: 0.5, 2: 9.0, 3: 3.0} {
		require.NoError(t, db.Track(ctx, id, nil))
		// Stale high score that must not win: only the latest row per
		// universe participates.
		require.NoError(t, db.ReplaceTrendScore(ctx, TrendScore{
			TS: base, UniverseID: id, DZ: ptr(100.0),
		}))
		require.NoError(t, db.ReplaceTrendScore(ctx, TrendScore{
			TS: base.Add(time.Hour), UniverseID: id, DZ: ptr(dz),
		}))
	}

	rows, err := db.Breakouts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(2), rows[0].UniverseID)
	assert.Equal(t, int64(3), rows[1].UniverseID)
	assert.Equal(t, int64(1), rows[2].UniverseID)
}

func TestBreakoutsMinVotesFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for id, votes := range map[int64]int64{1: 5, 2: 500} {
		require.NoError(t, db.Track(ctx, id, nil))
		require.NoError(t, db.ReplaceTrendScore(ctx, TrendScore{TS: ts, UniverseID: id, DZ: ptr(1.0)}))
		require.NoError(t, db.UpsertLiveCache(ctx, LiveCache{
			UniverseID: id, FetchedAt: ts, UpVotes: ptr(votes), DownVotes: ptr(int64(0)),
		}))
	}

	rows, err := db.Breakouts(ctx, 10, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].UniverseID)
}

func TestUpsertLiveCacheReplaces(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.UpsertLiveCache(ctx, LiveCache{
		UniverseID: 1, FetchedAt: ts, Playing: ptr(int64(10)),
	}))
	require.NoError(t, db.UpsertLiveCache(ctx, LiveCache{
		UniverseID: 1, FetchedAt: ts.Add(10 * time.Minute), Playing: ptr(int64(20)),
	}))

	row, err := db.GetLiveCache(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, row.Playing)
	assert.Equal(t, int64(20), *row.Playing)
}

func TestHistoryMetricValidation(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	_, err := db.History(ctx, 1, "playing; DROP TABLE universes", time.Time{})
	assert.Error(t, err)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.AppendHourlyStats(ctx, HourlyStats{
		TS: ts, UniverseID: 1, FavoritesTotal: ptr(int64(12)),
	}))

	series, err := db.History(ctx, 1, "favorites", time.Time{})
	require.NoError(t, err)
	require.Len(t, series, 1)
	require.NotNil(t, series[0].Value)
	assert.Equal(t, int64(12), *series[0].Value)
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	sentinel := errors.New("boom")
	err := db.InTx(ctx, func(tx Store) error {
		require.NoError(t, tx.AppendHourlyStats(ctx, HourlyStats{
			TS: ts, UniverseID: 1, Playing: ptr(int64(100)),
		}))
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	window, err := db.StatsWindow(ctx, 1, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, window)
}

func TestSetCreatorKeepsKnownName(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	require.NoError(t, db.Track(ctx, 1, nil))

	require.NoError(t, db.SetCreator(ctx, 1, Creator{CreatorID: 99, CreatorType: "GROUP", Name: ptr("Studio")}))
	require.NoError(t, db.SetCreator(ctx, 1, Creator{CreatorID: 99, CreatorType: "GROUP"}))

	u, err := db.GetUniverse(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, u.CreatorID)
	assert.Equal(t, int64(99), *u.CreatorID)
}

func TestGetUniverseNotFound(t *testing.T) {
	db := newTestStore(t)
	_, err := db.GetUniverse(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}
