package crawl

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/fangraph/fangraph/internal/bandcamp"
	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/internal/types"
)

// FetchItemCollectors crawls every fan who collects the stored item.
//
// The item's own page yields the first batch of collector thumbs; the
// tralbum collectors API pages through the rest. The thumbs carry the
// pagination token, and the tralbum identity the API paginates by (which
// differs from the stored item id for collapsed tracks) comes from the
// page's bc-page-properties meta tag, read only when pagination has to
// continue past the inline thumbs.
//
// Items whose URL does not point at a bandcamp.com subdomain cannot be
// crawled; they fail with bandcamp.ErrNotFound before any request so the
// worker retires them. Fresh items are skipped.
func FetchItemCollectors(ctx context.Context, store storage.Store, fetcher ItemFetcher, itemID int64) error {
	fresh, err := store.ItemFresh(ctx, itemID)
	if err != nil {
		return err
	}
	if fresh {
		log.WithField("item_id", itemID).Debug("item fresh, skipping")
		return nil
	}
	it, err := store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !bandcamp.ValidItemURL(it.ItemURL) {
		return fmt.Errorf("item %d url %q: %w", itemID, it.ItemURL, bandcamp.ErrNotFound)
	}

	itemLog := log.WithFields(log.Fields{"item_id": itemID, "title": it.ItemTitle})
	itemLog.Info("fetching collectors")
	page, err := fetcher.FetchItemPage(ctx, it.ItemURL)
	if err != nil {
		return err
	}

	token := ""
	newEdges, total := 0, 0
	for _, thumb := range page.Thumbs {
		inserted, err := storeThumb(ctx, store, itemID, thumb)
		if err != nil {
			return err
		}
		if inserted {
			newEdges++
		}
		total++
		if thumb.Token != nil {
			token = *thumb.Token
		}
	}
	recordPage(ctx, kindItem, int64(newEdges))

	done := total > 0 && newEdges == 0
	if done || !page.MoreThumbsAvailable {
		return nil
	}
	props, err := page.PageProperties()
	if err != nil {
		return err
	}

	for {
		itemLog.Info("fetching more collectors")
		next, err := fetcher.FetchMoreThumbs(ctx, token, props.ItemID, props.ItemType)
		if err != nil {
			return err
		}
		if len(next.Results) == 0 {
			return nil
		}
		newEdges = 0
		for _, thumb := range next.Results {
			inserted, err := storeThumb(ctx, store, itemID, thumb)
			if err != nil {
				return err
			}
			if inserted {
				newEdges++
			}
			if thumb.Token != nil {
				token = *thumb.Token
			}
		}
		recordPage(ctx, kindItem, int64(newEdges))
		if newEdges == 0 || !next.MoreAvailable {
			return nil
		}
	}
}

// storeThumb upserts the collector and links it to the item, reporting
// whether the collected_by edge was new.
func storeThumb(ctx context.Context, store storage.Store, itemID int64, thumb types.Collector) (bool, error) {
	if err := store.UpsertCollector(ctx, thumb); err != nil {
		return false, err
	}
	return store.InsertCollectedBy(ctx, itemID, thumb.FanID)
}
