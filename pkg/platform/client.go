// Package platform is the typed boundary to the public platform API.
// Callers only ever see typed results or typed failures; raw upstream
// JSON never leaves this package.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Default public endpoints. Overridable for tests and proxies.
const (
	DefaultGamesAPI    = "https://games.roblox.com"
	DefaultUniverseAPI = "https://apis.roblox.com"
	DefaultGroupsAPI   = "https://groups.roblox.com"
	DefaultUsersAPI    = "https://users.roblox.com"
)

// ErrNotFound marks an id the platform does not know about.
var ErrNotFound = errors.New("platform: not found")

// APIError is a failed upstream call after retries were exhausted.
type APIError struct {
	Status int
	URL    string
	Err    error // non-nil for network-level failures (timeout, reset)
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("platform: %s: HTTP %d", e.URL, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying later:
// rate limiting, server errors, and network-level failures.
func (e *APIError) Transient() bool {
	return e.Err != nil || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Transient()
}

// CreatorRef identifies the user or group that owns a universe.
type CreatorRef struct {
	ID   int64
	Type string // "User" or "Group"
	Name *string
}

// GameDetails are the best-effort current metrics and metadata for a
// universe. Fields are nil when upstream omits them.
type GameDetails struct {
	Name        *string
	Description *string
	Playing     *int64
	VisitsTotal *int64
	ServerSize  *int64
	Creator     *CreatorRef
}

// Votes are the current up/down vote counts.
type Votes struct {
	Up   *int64
	Down *int64
}

// Favorites is the current favorites total. Nil means the platform has
// no favorites metric for this id, which is not an error.
type Favorites struct {
	Total *int64
}

// Config configures the platform client. Zero values fall back to the
// public endpoints, a 12s timeout, and 3 attempts.
type Config struct {
	GamesAPI    string
	UniverseAPI string
	GroupsAPI   string
	UsersAPI    string
	ExploreAPI  string
	Timeout     time.Duration
	MaxAttempts int
	RetryWait   time.Duration
}

// Client calls the platform's public endpoints with one shared retry
// policy: bounded attempts with backoff on 429/5xx and network errors.
type Client struct {
	http *resty.Client
	cfg  Config
}

// NewClient creates a platform client.
func NewClient(cfg Config) *Client {
	if cfg.GamesAPI == "" {
		cfg.GamesAPI = DefaultGamesAPI
	}
	if cfg.UniverseAPI == "" {
		cfg.UniverseAPI = DefaultUniverseAPI
	}
	if cfg.GroupsAPI == "" {
		cfg.GroupsAPI = DefaultGroupsAPI
	}
	if cfg.UsersAPI == "" {
		cfg.UsersAPI = DefaultUsersAPI
	}
	if cfg.ExploreAPI == "" {
		cfg.ExploreAPI = cfg.UniverseAPI + "/explore-api/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = 250 * time.Millisecond
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxAttempts - 1).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(10 * cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, cfg: cfg}
}

// getJSON performs one logical GET (retries included) and decodes the
// body into out on success.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(url)
	if err != nil {
		return &APIError{URL: url, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), URL: url}
	}
	return nil
}

// Wire shapes. The games endpoints answer batch queries, so single-id
// lookups still get a data array and must pick their own row.
type gameItem struct {
	ID          *int64  `json:"id"`
	UniverseID  *int64  `json:"universeId"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Playing     *int64  `json:"playing"`
	Visits      *int64  `json:"visits"`
	MaxPlayers  *int64  `json:"maxPlayers"`
	Creator     *struct {
		ID   *int64  `json:"id"`
		Type *string `json:"type"`
		Name *string `json:"name"`
	} `json:"creator"`
}

type gameList struct {
	Data []gameItem `json:"data"`
}

func (l gameList) find(universeID int64) *gameItem {
	for i := range l.Data {
		it := &l.Data[i]
		if (it.ID != nil && *it.ID == universeID) ||
			(it.UniverseID != nil && *it.UniverseID == universeID) {
			return it
		}
	}
	return nil
}

// GameDetails fetches playing/visit counts and metadata for one universe.
func (c *Client) GameDetails(ctx context.Context, universeID int64) (GameDetails, error) {
	url := fmt.Sprintf("%s/v1/games?universeIds=%d", c.cfg.GamesAPI, universeID)

	var list gameList
	if err := c.getJSON(ctx, url, &list); err != nil {
		return GameDetails{}, err
	}

	item := list.find(universeID)
	if item == nil {
		// The batch endpoint answers 200 with an empty data array for
		// unknown ids.
		return GameDetails{}, fmt.Errorf("universe %d: %w", universeID, ErrNotFound)
	}

	d := GameDetails{
		Name:        item.Name,
		Description: item.Description,
		Playing:     item.Playing,
		VisitsTotal: item.Visits,
		ServerSize:  item.MaxPlayers,
	}
	if cr := item.Creator; cr != nil && cr.ID != nil && cr.Type != nil {
		d.Creator = &CreatorRef{ID: *cr.ID, Type: *cr.Type, Name: cr.Name}
	}
	return d, nil
}

type voteItem struct {
	ID         *int64 `json:"id"`
	UniverseID *int64 `json:"universeId"`
	UpVotes    *int64 `json:"upVotes"`
	DownVotes  *int64 `json:"downVotes"`
}

// Votes fetches the current vote counts for one universe.
func (c *Client) Votes(ctx context.Context, universeID int64) (Votes, error) {
	url := fmt.Sprintf("%s/v1/games/votes?universeIds=%d", c.cfg.GamesAPI, universeID)

	var list struct {
		Data []voteItem `json:"data"`
	}
	if err := c.getJSON(ctx, url, &list); err != nil {
		return Votes{}, err
	}

	for _, it := range list.Data {
		if (it.ID != nil && *it.ID == universeID) ||
			(it.UniverseID != nil && *it.UniverseID == universeID) {
			return Votes{Up: it.UpVotes, Down: it.DownVotes}, nil
		}
	}
	return Votes{}, nil
}

// FavoritesCount fetches the favorites total. A 404 means the id has no
// favorites metric (for example a place id) and yields a nil total
// rather than an error, so one missing metric cannot fail a snapshot.
func (c *Client) FavoritesCount(ctx context.Context, universeID int64) (Favorites, error) {
	url := fmt.Sprintf("%s/v1/games/%d/favorites/count", c.cfg.GamesAPI, universeID)

	var body struct {
		FavoritesCount *int64 `json:"favoritesCount"`
		Count          *int64 `json:"count"`
	}
	if err := c.getJSON(ctx, url, &body); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Favorites{}, nil
		}
		return Favorites{}, err
	}

	if body.FavoritesCount != nil {
		return Favorites{Total: body.FavoritesCount}, nil
	}
	return Favorites{Total: body.Count}, nil
}

// ResolveUniverseFromPlace maps a place id to its universe id. Tries the
// universe endpoint first, then the legacy multiget fallback.
func (c *Client) ResolveUniverseFromPlace(ctx context.Context, placeID int64) (int64, error) {
	var direct struct {
		UniverseID *int64 `json:"universeId"`
	}
	url := fmt.Sprintf("%s/universes/v1/places/%d/universe", c.cfg.UniverseAPI, placeID)
	if err := c.getJSON(ctx, url, &direct); err == nil && direct.UniverseID != nil {
		return *direct.UniverseID, nil
	}

	var legacy struct {
		Data []struct {
			UniverseID *int64 `json:"universeId"`
		} `json:"data"`
	}
	url = fmt.Sprintf("%s/v1/games/multiget-place-details?placeIds=%d", c.cfg.GamesAPI, placeID)
	if err := c.getJSON(ctx, url, &legacy); err != nil {
		return 0, err
	}
	if len(legacy.Data) > 0 && legacy.Data[0].UniverseID != nil {
		return *legacy.Data[0].UniverseID, nil
	}
	return 0, fmt.Errorf("place %d: %w", placeID, ErrNotFound)
}

// GroupName resolves a group's display name.
func (c *Client) GroupName(ctx context.Context, groupID int64) (*string, error) {
	var body struct {
		Name *string `json:"name"`
	}
	url := fmt.Sprintf("%s/v1/groups/%d", c.cfg.GroupsAPI, groupID)
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}
	return body.Name, nil
}

// UserName resolves a user's display name.
func (c *Client) UserName(ctx context.Context, userID int64) (*string, error) {
	var body struct {
		Name *string `json:"name"`
	}
	url := fmt.Sprintf("%s/v1/users/%d", c.cfg.UsersAPI, userID)
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}
	return body.Name, nil
}
