package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Sort names worth crawling on the explore surface. Anything matching
// one of these substrings is a chart of currently popular universes.
var wantedSorts = []string{
	"popular", "top", "engag", "up", "featured", "home", "trending", "recommended",
}

// maxSortsPerCrawl caps how many charts one discovery pass requests.
const maxSortsPerCrawl = 8

type exploreSort struct {
	SortID      string `json:"sortId"`
	Token       string `json:"token"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

func (s exploreSort) id() string {
	if s.SortID != "" {
		return s.SortID
	}
	return s.Token
}

func (s exploreSort) displayName() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

type exploreSortList struct {
	Sorts []exploreSort `json:"sorts"`
	Data  *struct {
		Sorts []exploreSort `json:"sorts"`
	} `json:"data"`
}

func (l exploreSortList) all() []exploreSort {
	if len(l.Sorts) > 0 {
		return l.Sorts
	}
	if l.Data != nil {
		return l.Data.Sorts
	}
	return nil
}

// exploreContent digs the universe id out of the shapes the explore API
// uses across sort types.
type exploreContent struct {
	UniverseID      *int64 `json:"universeId"`
	ContentMetadata *struct {
		UniverseID *int64 `json:"universeId"`
	} `json:"contentMetadata"`
	Universe *struct {
		ID *int64 `json:"id"`
	} `json:"universe"`
	Game *struct {
		UniverseID *int64 `json:"universeId"`
	} `json:"game"`
}

func (c exploreContent) universeID() (int64, bool) {
	switch {
	case c.UniverseID != nil:
		return *c.UniverseID, true
	case c.ContentMetadata != nil && c.ContentMetadata.UniverseID != nil:
		return *c.ContentMetadata.UniverseID, true
	case c.Universe != nil && c.Universe.ID != nil:
		return *c.Universe.ID, true
	case c.Game != nil && c.Game.UniverseID != nil:
		return *c.Game.UniverseID, true
	}
	return 0, false
}

type exploreContentList struct {
	Contents []exploreContent `json:"contents"`
	Games    []exploreContent `json:"games"`
	Data     *struct {
		Contents []exploreContent `json:"contents"`
		Games    []exploreContent `json:"games"`
	} `json:"data"`
}

func (l exploreContentList) all() []exploreContent {
	if len(l.Contents) > 0 {
		return l.Contents
	}
	if len(l.Games) > 0 {
		return l.Games
	}
	if l.Data != nil {
		if len(l.Data.Contents) > 0 {
			return l.Data.Contents
		}
		return l.Data.Games
	}
	return nil
}

// DiscoverTopUniverses crawls the explore charts and returns up to max
// unique universe ids currently being promoted. Individual chart
// failures skip that chart only.
func (c *Client) DiscoverTopUniverses(ctx context.Context, max int) ([]int64, error) {
	if max <= 0 {
		max = 200
	}

	sessionID := uuid.NewString()
	sortsURL := fmt.Sprintf("%s/get-sorts?sessionId=%s&platformType=PC", c.cfg.ExploreAPI, sessionID)

	var sortList exploreSortList
	if err := c.getJSON(ctx, sortsURL, &sortList); err != nil {
		return nil, fmt.Errorf("discover sorts: %w", err)
	}

	sorts := sortList.all()
	if len(sorts) == 0 {
		return nil, nil
	}

	var chosen []exploreSort
	for _, s := range sorts {
		name := strings.ToLower(s.displayName())
		for _, w := range wantedSorts {
			if strings.Contains(name, w) {
				chosen = append(chosen, s)
				break
			}
		}
	}
	if len(chosen) == 0 {
		chosen = sorts
	}
	if len(chosen) > maxSortsPerCrawl {
		chosen = chosen[:maxSortsPerCrawl]
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, s := range chosen {
		contentURL := fmt.Sprintf("%s/get-sort-content?sessionId=%s&sortId=%s",
			c.cfg.ExploreAPI, sessionID, url.QueryEscape(s.id()))

		var contentList exploreContentList
		if err := c.getJSON(ctx, contentURL, &contentList); err != nil {
			// One bad chart must not sink the crawl.
			continue
		}

		for _, item := range contentList.all() {
			id, ok := item.universeID()
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			if len(ids) >= max {
				return ids, nil
			}
		}
	}
	return ids, nil
}
