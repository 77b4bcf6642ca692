package radar

import (
	"context"
	"fmt"
	"log/slog"
)

// Discoverer is the slice of the platform client the discovery job
// consumes.
type Discoverer interface {
	DiscoverTopUniverses(ctx context.Context, max int) ([]int64, error)
}

// DiscoveryResult summarizes one discovery pass.
type DiscoveryResult struct {
	Input        int `json:"input"`
	NewlyTracked int `json:"newly_tracked"`
	TotalTracked int `json:"total_tracked"`
}

// Discovery tracks universes currently promoted on the platform's
// explore charts.
type Discovery struct {
	store  trackingStore
	client Discoverer
	max    int
	log    *slog.Logger
}

type trackingStore interface {
	TrackAll(ctx context.Context, ids []int64) (int, error)
	ListTrackedIDs(ctx context.Context) ([]int64, error)
}

// NewDiscovery creates the chart discovery job. max caps how many
// universe ids one pass may add.
func NewDiscovery(s trackingStore, client Discoverer, max int, logger *slog.Logger) *Discovery {
	if max <= 0 {
		max = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{store: s, client: client, max: max, log: logger}
}

// Run crawls the charts and marks every discovered universe tracked.
func (d *Discovery) Run(ctx context.Context) (DiscoveryResult, error) {
	ids, err := d.client.DiscoverTopUniverses(ctx, d.max)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("discover universes: %w", err)
	}

	newly, err := d.store.TrackAll(ctx, ids)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("track discovered universes: %w", err)
	}

	tracked, err := d.store.ListTrackedIDs(ctx)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("count tracked universes: %w", err)
	}

	res := DiscoveryResult{Input: len(ids), NewlyTracked: newly, TotalTracked: len(tracked)}
	d.log.Info("discovery complete",
		"input", res.Input, "newly_tracked", res.NewlyTracked, "total_tracked", res.TotalTracked)
	return res, nil
}
