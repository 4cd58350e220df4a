package crawl

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/fangraph/fangraph/internal/bandcamp"
	"github.com/fangraph/fangraph/internal/storage"
)

// FetchCollection crawls everything the named fan collects into the store.
//
// The fan's public page yields the fan row plus the first batch of
// collection entries; the collection API pages through the rest, newest
// first. Pagination stops once a whole page inserted no new collects
// edges: everything older is already in the graph from an earlier crawl.
//
// A fan crawled within the freshness window is skipped unless force is
// set. FetchCollection never touches queues or done markers; the caller
// decides what the returned error means for the queue entry.
func FetchCollection(ctx context.Context, store storage.Store, fetcher CollectionFetcher, username string, force bool) error {
	if !force {
		fresh, err := store.CollectorFresh(ctx, username)
		if err != nil {
			return err
		}
		if fresh {
			log.WithField("username", username).Debug("collector fresh, skipping")
			return nil
		}
	}

	log.WithField("username", username).Info("reading initial collection page")
	page, err := fetcher.FetchFanPage(ctx, username)
	if err != nil {
		return err
	}
	if err := store.UpsertCollector(ctx, page.FanData); err != nil {
		return err
	}

	fanID := page.FanData.FanID
	newEdges, total := 0, 0
	for _, entry := range page.ItemCache.Collection {
		inserted, err := storeEntry(ctx, store, fanID, entry)
		if err != nil {
			return err
		}
		if inserted {
			newEdges++
		}
		total++
	}
	recordPage(ctx, kindCollection, int64(newEdges))

	done := total > 0 && newEdges == 0
	if done || page.CollectionData.ItemCount <= page.CollectionData.BatchSize {
		return nil
	}
	if page.CollectionData.LastToken == nil {
		return nil
	}

	token := *page.CollectionData.LastToken
	for {
		log.WithField("username", username).Info("reading next collection page")
		next, err := fetcher.FetchCollectionItems(ctx, fanID, token)
		if err != nil {
			return err
		}
		if len(next.Items) == 0 {
			return nil
		}
		newEdges = 0
		for _, entry := range next.Items {
			inserted, err := storeEntry(ctx, store, fanID, entry)
			if err != nil {
				return err
			}
			if inserted {
				newEdges++
			}
			if entry.Token != nil {
				token = *entry.Token
			}
		}
		recordPage(ctx, kindCollection, int64(newEdges))
		if newEdges == 0 || !next.MoreAvailable {
			return nil
		}
	}
}

// storeEntry upserts the collapsed item and links the fan to it,
// reporting whether the collects edge was new.
func storeEntry(ctx context.Context, store storage.Store, fanID int64, entry bandcamp.CollectionEntry) (bool, error) {
	it := entry.Collapse()
	if err := store.UpsertItem(ctx, it); err != nil {
		return false, err
	}
	return store.InsertCollects(ctx, fanID, it.ItemID)
}
