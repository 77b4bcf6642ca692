package radar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uniradar/uniradar/internal/store"
	"github.com/uniradar/uniradar/pkg/platform"
)

// MetadataFetcher is the slice of the platform client the daily
// metadata refresh consumes.
type MetadataFetcher interface {
	GameDetails(ctx context.Context, universeID int64) (platform.GameDetails, error)
	GroupName(ctx context.Context, groupID int64) (*string, error)
	UserName(ctx context.Context, userID int64) (*string, error)
}

// MetadataSync refreshes display metadata and creator attribution for
// every tracked universe once a day.
type MetadataSync struct {
	store  store.Store
	client MetadataFetcher
	log    *slog.Logger
}

// NewMetadataSync creates the daily metadata job.
func NewMetadataSync(s store.Store, client MetadataFetcher, logger *slog.Logger) *MetadataSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataSync{store: s, client: client, log: logger}
}

// Run updates every tracked universe. Same partial failure policy as
// the snapshot job.
func (m *MetadataSync) Run(ctx context.Context) (Result, error) {
	ids, err := m.store.ListTrackedIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list tracked universes: %w", err)
	}

	var res Result
	for _, id := range ids {
		if err := m.syncOne(ctx, id); err != nil {
			res.Failed++
			m.log.Warn("metadata sync failed", "universe_id", id, "error", err)
			continue
		}
		res.Success++
	}

	m.log.Info("metadata sync complete", "success", res.Success, "failed", res.Failed)
	return res, nil
}

func (m *MetadataSync) syncOne(ctx context.Context, id int64) error {
	d, err := m.client.GameDetails(ctx, id)
	if err != nil {
		return err
	}

	var creator *store.Creator
	if d.Creator != nil {
		name := d.Creator.Name
		if name == nil {
			// The games endpoint sometimes omits the creator name;
			// fall back to the owning group or user profile.
			if strings.EqualFold(d.Creator.Type, "Group") {
				name, err = m.client.GroupName(ctx, d.Creator.ID)
			} else {
				name, err = m.client.UserName(ctx, d.Creator.ID)
			}
			if err != nil {
				return fmt.Errorf("resolve creator %d: %w", d.Creator.ID, err)
			}
		}
		creator = &store.Creator{
			CreatorID:   d.Creator.ID,
			CreatorType: strings.ToUpper(d.Creator.Type),
			Name:        name,
		}
	}

	return m.store.InTx(ctx, func(tx store.Store) error {
		if creator != nil {
			if err := tx.SetCreator(ctx, id, *creator); err != nil {
				return err
			}
		}
		return tx.UpsertMeta(ctx, id, store.UniverseMeta{
			Name:        d.Name,
			Description: d.Description,
			ServerSize:  d.ServerSize,
		})
	})
}
