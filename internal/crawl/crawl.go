// Package crawl walks the Bandcamp collection graph.
//
// Two ticker-driven workers drain the crawl queues: the collection worker
// takes one queued fan per tick and stores every item that fan collects,
// and the item worker takes one queued item per tick and stores every fan
// who collects it. Neither worker enqueues anything itself; the progress
// manager decides what needs crawling and feeds the queues.
//
// Pagination stops early once a whole page inserts no new edges, so
// re-crawling a mostly-known entity only costs a page or two.
package crawl

import (
	"context"
	"time"

	"github.com/fangraph/fangraph/internal/bandcamp"
)

// CollectionFetcher is the remote surface the collection side crawls.
type CollectionFetcher interface {
	FetchFanPage(ctx context.Context, username string) (*bandcamp.FanPage, error)
	FetchCollectionItems(ctx context.Context, fanID int64, olderThan string) (*bandcamp.CollectionPage, error)
}

// ItemFetcher is the remote surface the item side crawls.
type ItemFetcher interface {
	FetchItemPage(ctx context.Context, itemURL string) (*bandcamp.ItemPage, error)
	FetchMoreThumbs(ctx context.Context, token string, tralbumID int64, tralbumType string) (*bandcamp.ThumbsPage, error)
}

// Fetcher bundles both crawl surfaces. *bandcamp.Client satisfies it.
type Fetcher interface {
	CollectionFetcher
	ItemFetcher
}

var _ Fetcher = (*bandcamp.Client)(nil)

// waitFor sleeps for d, returning early if ctx is cancelled.
func waitFor(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
