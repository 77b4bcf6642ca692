package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Universe is a tracked experience on the platform. Metadata fields are
// nullable because they are filled opportunistically by the metadata and
// snapshot jobs.
type Universe struct {
	UniverseID  int64      `db:"universe_id" json:"universe_id"`
	Name        *string    `db:"name" json:"name"`
	Description *string    `db:"description" json:"description"`
	CreatorID   *int64     `db:"creator_id" json:"creator_id,omitempty"`
	RootPlaceID *int64     `db:"root_place_id" json:"root_place_id,omitempty"`
	ServerSize  *int64     `db:"server_size" json:"server_size"`
	IsTracked   bool       `db:"is_tracked" json:"is_tracked"`
	CreatedAt   *time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	LastSeenAt  *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// Creator is the user or group that owns a universe.
type Creator struct {
	CreatorID   int64   `db:"creator_id" json:"creator_id"`
	CreatorType string  `db:"creator_type" json:"creator_type"` // "USER" or "GROUP"
	Name        *string `db:"name" json:"name"`
}

// UniverseMeta carries the metadata fields refreshed from upstream.
// Nil fields never overwrite known values (COALESCE on write).
type UniverseMeta struct {
	Name        *string
	Description *string
	ServerSize  *int64
}

// HourlyStats is one raw metrics reading, keyed to a clock hour.
// Rows are append-only: a second insert for the same hour is ignored.
type HourlyStats struct {
	TS             time.Time `db:"ts" json:"ts"`
	UniverseID     int64     `db:"universe_id" json:"universe_id"`
	Playing        *int64    `db:"playing" json:"playing"`
	VisitsTotal    *int64    `db:"visits_total" json:"visits_total"`
	FavoritesTotal *int64    `db:"favorites_total" json:"favorites_total"`
	UpVotes        *int64    `db:"up_votes" json:"up_votes"`
	DownVotes      *int64    `db:"down_votes" json:"down_votes"`
}

// StatsPoint is the slice of an hourly row the trend computation reads.
type StatsPoint struct {
	TS        time.Time `db:"ts"`
	Playing   *int64    `db:"playing"`
	UpVotes   *int64    `db:"up_votes"`
	DownVotes *int64    `db:"down_votes"`
}

// TrendScore is the derived signal row for one universe and hour.
// Unlike hourly stats it is a recomputable view: a re-run for the same
// hour replaces the prior row.
type TrendScore struct {
	TS         time.Time `db:"ts" json:"ts"`
	UniverseID int64     `db:"universe_id" json:"universe_id"`
	DZ         *float64  `db:"dz_playing_1h" json:"dz"`
	Accel      *float64  `db:"accel" json:"accel"`
	Sustain    *float64  `db:"sustain_6h" json:"sustain"`
	Wilson     *float64  `db:"wilson_score" json:"wilson"`
	RankBucket *string   `db:"rank_bucket" json:"rank_bucket"`
}

// LiveCache holds the most recent raw values for a universe, refreshed
// more often than the hourly series.
type LiveCache struct {
	UniverseID     int64     `db:"universe_id" json:"universe_id"`
	FetchedAt      time.Time `db:"fetched_at" json:"fetched_at"`
	Playing        *int64    `db:"playing" json:"playing"`
	FavoritesTotal *int64    `db:"favorites_total" json:"favorites_total"`
	UpVotes        *int64    `db:"up_votes" json:"up_votes"`
	DownVotes      *int64    `db:"down_votes" json:"down_votes"`
}

// UniverseSummary is the list view: universe joined with live values and
// the latest wilson score.
type UniverseSummary struct {
	UniverseID int64      `db:"universe_id" json:"universe_id"`
	Name       *string    `db:"name" json:"name"`
	Playing    *int64     `db:"playing" json:"playing"`
	Favorites  *int64     `db:"favorites_total" json:"favorites"`
	Wilson     *float64   `db:"wilson" json:"wilson"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// Breakout is a universe ranked by its latest dz score.
type Breakout struct {
	UniverseID int64     `db:"universe_id" json:"universe_id"`
	Name       *string   `db:"name" json:"name"`
	TS         time.Time `db:"ts" json:"ts"`
	DZ         *float64  `db:"dz_playing_1h" json:"dz"`
	Accel      *float64  `db:"accel" json:"accel"`
	Sustain    *float64  `db:"sustain_6h" json:"sustain"`
	Wilson     *float64  `db:"wilson_score" json:"wilson"`
}

// HistoryPoint is one (ts, value) pair from a metric series.
type HistoryPoint struct {
	TS    time.Time `db:"ts" json:"ts"`
	Value *int64    `db:"value" json:"value"`
}

// ListOpts controls universe listing.
type ListOpts struct {
	Order string // "last_seen" (default) or "players"
	Limit int
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface.
type Store interface {
	ListTrackedIDs(ctx context.Context) ([]int64, error)
	Track(ctx context.Context, id int64, name *string) error
	TrackAll(ctx context.Context, ids []int64) (int, error)
	Untrack(ctx context.Context, id int64) error
	GetUniverse(ctx context.Context, id int64) (*Universe, error)
	ListUniverses(ctx context.Context, opts ListOpts) ([]UniverseSummary, error)
	UpsertMeta(ctx context.Context, id int64, meta UniverseMeta) error
	SetCreator(ctx context.Context, universeID int64, c Creator) error

	AppendHourlyStats(ctx context.Context, row HourlyStats) error
	StatsWindow(ctx context.Context, id int64, since time.Time) ([]StatsPoint, error)
	History(ctx context.Context, id int64, metric string, since time.Time) ([]HistoryPoint, error)

	ReplaceTrendScore(ctx context.Context, row TrendScore) error
	LatestTrendScore(ctx context.Context, id int64) (*TrendScore, error)
	Breakouts(ctx context.Context, limit int, minVotes int64) ([]Breakout, error)

	UpsertLiveCache(ctx context.Context, row LiveCache) error
	GetLiveCache(ctx context.Context, id int64) (*LiveCache, error)

	// InTx runs fn against a transactional view of the store, so one
	// universe's write sequence commits or rolls back as a unit.
	InTx(ctx context.Context, fn func(Store) error) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
	q  sqlx.ExtContext // db normally, tx inside InTx
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, q: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx begins a transaction and hands fn a store view bound to it.
// Nested calls reuse the enclosing transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&SQLiteStore{db: s.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTrackedIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, s.q, &ids,
		"SELECT universe_id FROM universes WHERE is_tracked=1 ORDER BY universe_id")
	if err != nil {
		return nil, fmt.Errorf("list tracked universes: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Track(ctx context.Context, id int64, name *string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO universes (universe_id, name, is_tracked, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(universe_id) DO UPDATE SET
			is_tracked = 1,
			name = COALESCE(excluded.name, universes.name)
	`, id, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("track universe %d: %w", id, err)
	}
	return nil
}

// TrackAll marks every id as tracked in one transaction and returns how
// many were not tracked before.
func (s *SQLiteStore) TrackAll(ctx context.Context, ids []int64) (int, error) {
	var before, after int
	err := s.InTx(ctx, func(tx Store) error {
		ts := tx.(*SQLiteStore)
		if err := sqlx.GetContext(ctx, ts.q, &before,
			"SELECT COUNT(*) FROM universes WHERE is_tracked=1"); err != nil {
			return fmt.Errorf("count tracked: %w", err)
		}
		for _, id := range ids {
			if err := tx.Track(ctx, id, nil); err != nil {
				return err
			}
		}
		return sqlx.GetContext(ctx, ts.q, &after,
			"SELECT COUNT(*) FROM universes WHERE is_tracked=1")
	})
	if err != nil {
		return 0, err
	}
	newly := after - before
	if newly < 0 {
		newly = 0
	}
	return newly, nil
}

func (s *SQLiteStore) Untrack(ctx context.Context, id int64) error {
	// Soft delete: the row and its history persist.
	_, err := s.q.ExecContext(ctx,
		"UPDATE universes SET is_tracked=0 WHERE universe_id=?", id)
	if err != nil {
		return fmt.Errorf("untrack universe %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) GetUniverse(ctx context.Context, id int64) (*Universe, error) {
	var u Universe
	err := sqlx.GetContext(ctx, s.q, &u,
		"SELECT * FROM universes WHERE universe_id=?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get universe %d: %w", id, err)
	}
	return &u, nil
}

func (s *SQLiteStore) ListUniverses(ctx context.Context, opts ListOpts) ([]UniverseSummary, error) {
	orderBy := "u.last_seen_at DESC, u.universe_id DESC"
	if opts.Order == "players" {
		orderBy = "lc.playing DESC, u.universe_id DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := fmt.Sprintf(`
		SELECT u.universe_id,
		       u.name,
		       u.last_seen_at,
		       lc.playing,
		       lc.favorites_total,
		       (SELECT wilson_score FROM trending_scores_hourly t
		        WHERE t.universe_id = u.universe_id
		        ORDER BY t.ts DESC LIMIT 1) AS wilson
		FROM universes u
		LEFT JOIN universe_live_cache lc ON lc.universe_id = u.universe_id
		WHERE u.is_tracked = 1
		ORDER BY %s
		LIMIT ?`, orderBy)

	var rows []UniverseSummary
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list universes: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) UpsertMeta(ctx context.Context, id int64, meta UniverseMeta) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO universes (universe_id, name, description, server_size, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(universe_id) DO UPDATE SET
			name = COALESCE(excluded.name, universes.name),
			description = COALESCE(excluded.description, universes.description),
			server_size = COALESCE(excluded.server_size, universes.server_size),
			last_seen_at = excluded.last_seen_at
	`, id, meta.Name, meta.Description, meta.ServerSize, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert meta %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) SetCreator(ctx context.Context, universeID int64, c Creator) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO creators (creator_id, creator_type, name)
		VALUES (?, ?, ?)
		ON CONFLICT(creator_id) DO UPDATE SET
			creator_type = excluded.creator_type,
			name = COALESCE(excluded.name, creators.name)
	`, c.CreatorID, c.CreatorType, c.Name)
	if err != nil {
		return fmt.Errorf("upsert creator %d: %w", c.CreatorID, err)
	}

	_, err = s.q.ExecContext(ctx,
		"UPDATE universes SET creator_id=?, updated_at=? WHERE universe_id=?",
		c.CreatorID, time.Now().UTC(), universeID)
	if err != nil {
		return fmt.Errorf("link creator %d to universe %d: %w", c.CreatorID, universeID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendHourlyStats(ctx context.Context, row HourlyStats) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO universe_stats_hourly
			(ts, universe_id, playing, visits_total, favorites_total, up_votes, down_votes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, row.TS, row.UniverseID, row.Playing, row.VisitsTotal,
		row.FavoritesTotal, row.UpVotes, row.DownVotes)
	if err != nil {
		return fmt.Errorf("append hourly stats %d: %w", row.UniverseID, err)
	}
	return nil
}

func (s *SQLiteStore) StatsWindow(ctx context.Context, id int64, since time.Time) ([]StatsPoint, error) {
	var rows []StatsPoint
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT ts, playing, up_votes, down_votes
		FROM universe_stats_hourly
		WHERE universe_id = ? AND ts >= ?
		ORDER BY ts
	`, id, since)
	if err != nil {
		return nil, fmt.Errorf("stats window %d: %w", id, err)
	}
	return rows, nil
}

// historyColumns maps the public metric names to their columns. Anything
// else is rejected before it reaches SQL.
var historyColumns = map[string]string{
	"playing":    "playing",
	"visits":     "visits_total",
	"favorites":  "favorites_total",
	"up_votes":   "up_votes",
	"down_votes": "down_votes",
}

func (s *SQLiteStore) History(ctx context.Context, id int64, metric string, since time.Time) ([]HistoryPoint, error) {
	col, ok := historyColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	var rows []HistoryPoint
	err := sqlx.SelectContext(ctx, s.q, &rows, fmt.Sprintf(`
		SELECT ts, %s AS value
		FROM universe_stats_hourly
		WHERE universe_id = ? AND ts >= ?
		ORDER BY ts
	`, col), id, since)
	if err != nil {
		return nil, fmt.Errorf("history %s for %d: %w", metric, id, err)
	}
	return rows, nil
}

func (s *SQLiteStore) ReplaceTrendScore(ctx context.Context, row TrendScore) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO trending_scores_hourly
			(ts, universe_id, dz_playing_1h, accel, sustain_6h, wilson_score, rank_bucket)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, row.TS, row.UniverseID, row.DZ, row.Accel, row.Sustain, row.Wilson, row.RankBucket)
	if err != nil {
		return fmt.Errorf("replace trend score %d: %w", row.UniverseID, err)
	}
	return nil
}

func (s *SQLiteStore) LatestTrendScore(ctx context.Context, id int64) (*TrendScore, error) {
	var row TrendScore
	err := sqlx.GetContext(ctx, s.q, &row, `
		SELECT * FROM trending_scores_hourly
		WHERE universe_id = ?
		ORDER BY ts DESC LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest trend score %d: %w", id, err)
	}
	return &row, nil
}

func (s *SQLiteStore) Breakouts(ctx context.Context, limit int, minVotes int64) ([]Breakout, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT t.universe_id, u.name, t.ts, t.dz_playing_1h, t.accel, t.sustain_6h, t.wilson_score
		FROM trending_scores_hourly t
		JOIN universes u ON u.universe_id = t.universe_id
		JOIN (
			SELECT universe_id, MAX(ts) AS ts
			FROM trending_scores_hourly
			GROUP BY universe_id
		) latest ON latest.universe_id = t.universe_id AND latest.ts = t.ts`
	args := []any{}

	if minVotes > 0 {
		query += `
		JOIN universe_live_cache lc ON lc.universe_id = t.universe_id
		WHERE COALESCE(lc.up_votes, 0) + COALESCE(lc.down_votes, 0) >= ?`
		args = append(args, minVotes)
	}

	query += `
		ORDER BY t.dz_playing_1h DESC
		LIMIT ?`
	args = append(args, limit)

	var rows []Breakout
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("breakouts: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) UpsertLiveCache(ctx context.Context, row LiveCache) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO universe_live_cache
			(universe_id, fetched_at, playing, favorites_total, up_votes, down_votes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(universe_id) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			playing = excluded.playing,
			favorites_total = excluded.favorites_total,
			up_votes = excluded.up_votes,
			down_votes = excluded.down_votes
	`, row.UniverseID, row.FetchedAt, row.Playing, row.FavoritesTotal, row.UpVotes, row.DownVotes)
	if err != nil {
		return fmt.Errorf("upsert live cache %d: %w", row.UniverseID, err)
	}
	return nil
}

func (s *SQLiteStore) GetLiveCache(ctx context.Context, id int64) (*LiveCache, error) {
	var row LiveCache
	err := sqlx.GetContext(ctx, s.q, &row,
		"SELECT * FROM universe_live_cache WHERE universe_id=?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get live cache %d: %w", id, err)
	}
	return &row, nil
}
