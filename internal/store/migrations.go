package store

const schema = `
CREATE TABLE IF NOT EXISTS universes (
    universe_id   INTEGER PRIMARY KEY,
    name          TEXT,
    description   TEXT,
    creator_id    INTEGER REFERENCES creators(creator_id),
    root_place_id INTEGER,
    server_size   INTEGER,
    is_tracked    INTEGER NOT NULL DEFAULT 0,
    created_at    DATETIME,
    updated_at    DATETIME,
    last_seen_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_universes_tracked ON universes(is_tracked);
CREATE INDEX IF NOT EXISTS idx_universes_last_seen ON universes(last_seen_at);

CREATE TABLE IF NOT EXISTS creators (
    creator_id   INTEGER PRIMARY KEY,
    creator_type TEXT NOT NULL,
    name         TEXT
);

CREATE TABLE IF NOT EXISTS universe_stats_hourly (
    ts              DATETIME NOT NULL,
    universe_id     INTEGER NOT NULL REFERENCES universes(universe_id),
    playing         INTEGER,
    visits_total    INTEGER,
    favorites_total INTEGER,
    up_votes        INTEGER,
    down_votes      INTEGER,
    PRIMARY KEY (universe_id, ts)
);

CREATE INDEX IF NOT EXISTS idx_stats_hourly_ts ON universe_stats_hourly(ts);

CREATE TABLE IF NOT EXISTS trending_scores_hourly (
    ts            DATETIME NOT NULL,
    universe_id   INTEGER NOT NULL REFERENCES universes(universe_id),
    dz_playing_1h REAL,
    accel         REAL,
    sustain_6h    REAL,
    wilson_score  REAL,
    rank_bucket   TEXT,
    PRIMARY KEY (universe_id, ts)
);

CREATE INDEX IF NOT EXISTS idx_trending_ts ON trending_scores_hourly(ts);
CREATE INDEX IF NOT EXISTS idx_trending_dz ON trending_scores_hourly(dz_playing_1h);

CREATE TABLE IF NOT EXISTS universe_live_cache (
    universe_id     INTEGER PRIMARY KEY REFERENCES universes(universe_id),
    fetched_at      DATETIME NOT NULL,
    playing         INTEGER,
    favorites_total INTEGER,
    up_votes        INTEGER,
    down_votes      INTEGER
);
`
