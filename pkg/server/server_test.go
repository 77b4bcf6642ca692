package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniradar/uniradar/internal/store"
	"github.com/uniradar/uniradar/pkg/platform"
	"github.com/uniradar/uniradar/pkg/radar"
)

func ptr[T any](v T) *T { return &v }

// fixedFetcher answers every metrics fetch with the same values.
type fixedFetcher struct {
	playing int64
}

func (f *fixedFetcher) GameDetails(ctx context.Context, id int64) (platform.GameDetails, error) {
	return platform.GameDetails{Name: ptr("Universe"), Playing: ptr(f.playing)}, nil
}

func (f *fixedFetcher) Votes(ctx context.Context, id int64) (platform.Votes, error) {
	return platform.Votes{Up: ptr(int64(9)), Down: ptr(int64(1))}, nil
}

func (f *fixedFetcher) FavoritesCount(ctx context.Context, id int64) (platform.Favorites, error) {
	return platform.Favorites{Total: ptr(int64(50))}, nil
}

type staticResolver struct {
	universeID int64
	err        error
}

func (r *staticResolver) ResolveUniverseFromPlace(ctx context.Context, placeID int64) (int64, error) {
	return r.universeID, r.err
}

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	snap := radar.NewSnapshotter(db, &fixedFetcher{playing: 100}, nil)
	srv := New(db, snap, &staticResolver{universeID: 456}, 0, nil)
	return srv, db
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestTrackAndGetUniverse(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/track", `{"universe_id": 123, "name": "Pet Empire"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/universes/123", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Universe store.Universe `json:"universe"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(123), view.Universe.UniverseID)
	require.NotNil(t, view.Universe.Name)
	assert.Equal(t, "Pet Empire", *view.Universe.Name)
}

func TestTrackByPlaceID(t *testing.T) {
	srv, db := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/track", `{"place_id": 9001}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"universe_id":456`)

	ids, err := db.ListTrackedIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{456}, ids)
}

func TestTrackRequiresAnID(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/v1/track", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUniverseNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/v1/universes/777", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUntrack(t *testing.T) {
	srv, db := newTestServer(t)
	require.NoError(t, db.Track(context.Background(), 123, nil))

	rec := do(t, srv, http.MethodDelete, "/api/v1/track/123", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ids, err := db.ListTrackedIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestHistoryRejectsUnknownMetric(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/v1/universes/123/history?metric=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryWindow(t *testing.T) {
	srv, db := newTestServer(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Hour)

	// One row inside a 24h window, one far outside it.
	require.NoError(t, db.AppendHourlyStats(ctx, store.HourlyStats{
		TS: now.Add(-2 * time.Hour), UniverseID: 123, Playing: ptr(int64(10)),
	}))
	require.NoError(t, db.AppendHourlyStats(ctx, store.HourlyStats{
		TS: now.Add(-72 * time.Hour), UniverseID: 123, Playing: ptr(int64(99)),
	}))

	rec := do(t, srv, http.MethodGet, "/api/v1/universes/123/history?metric=playing&window=24h", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Series []store.HistoryPoint `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Series, 1)
	assert.Equal(t, int64(10), *resp.Series[0].Value)
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, db := newTestServer(t)
	require.NoError(t, db.Track(context.Background(), 123, nil))

	rec := do(t, srv, http.MethodPost, "/api/v1/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res radar.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Success)
	assert.Zero(t, res.Failed)

	window, err := db.StatsWindow(context.Background(), 123, time.Time{})
	require.NoError(t, err)
	require.Len(t, window, 1)
}

func TestBreakoutsEndpoint(t *testing.T) {
	srv, db := newTestServer(t)
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Hour)

	require.NoError(t, db.Track(ctx, 1, ptr("A")))
	require.NoError(t, db.Track(ctx, 2, ptr("B")))
	require.NoError(t, db.ReplaceTrendScore(ctx, store.TrendScore{TS: ts, UniverseID: 1, DZ: ptr(2.0)}))
	require.NoError(t, db.ReplaceTrendScore(ctx, store.TrendScore{TS: ts, UniverseID: 2, DZ: ptr(5.0)}))

	rec := do(t, srv, http.MethodGet, "/api/v1/radar/breakouts?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []store.Breakout `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(2), resp.Items[0].UniverseID)
}

func TestParseWindowHours(t *testing.T) {
	assert.Equal(t, 24, parseWindowHours("", 24))
	assert.Equal(t, 6, parseWindowHours("6h", 24))
	assert.Equal(t, 14*24, parseWindowHours("14d", 24))
	assert.Equal(t, 24, parseWindowHours("soon", 24))
}
