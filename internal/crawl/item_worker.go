package crawl

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fangraph/fangraph/internal/bandcamp"
	"github.com/fangraph/fangraph/internal/storage"
)

// ItemWorker drains the item queue, crawling one item's collectors per
// tick. It mirrors CollectionWorker on the other side of the graph.
type ItemWorker struct {
	store   storage.Store
	fetcher ItemFetcher

	// crawlAll falls back to stale known items when the queue is empty.
	crawlAll bool

	tick  time.Duration
	pause time.Duration
}

// NewItemWorker returns a worker ticking every 3 seconds.
func NewItemWorker(store storage.Store, fetcher ItemFetcher, crawlAll bool) *ItemWorker {
	return &ItemWorker{
		store:    store,
		fetcher:  fetcher,
		crawlAll: crawlAll,
		tick:     defaultTick,
		pause:    defaultPause,
	}
}

// SetIntervals overrides the tick and the post-rate-limit pause.
// Used by tests to avoid multi-second sleeps.
func (w *ItemWorker) SetIntervals(tick, pause time.Duration) {
	w.tick = tick
	w.pause = pause
}

// Run processes the queue until ctx is cancelled, one entry per tick with
// a pass before the first tick. It returns non-nil only on database
// failure; the supervisor restarts it in that case.
func (w *ItemWorker) Run(ctx context.Context) error {
	log.WithField("interval", w.tick).Info("item worker started")
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	for {
		if err := w.processNext(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// processNext crawls at most one queued item. Fetch outcomes are handled
// in place; only database errors bubble up.
func (w *ItemWorker) processNext(ctx context.Context) error {
	itemID, err := w.next(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil // nothing queued
	}
	if err != nil {
		return err
	}

	switch err := FetchItemCollectors(ctx, w.store, w.fetcher, itemID); {
	case err == nil:
		recordOutcome(ctx, kindItem, outcomeDone)
		return w.finish(ctx, itemID)
	case errors.Is(err, bandcamp.ErrRateLimited):
		log.WithField("item_id", itemID).Warn("rate limited, pausing")
		recordOutcome(ctx, kindItem, outcomeRateLimited)
		// Drop the half-written edges so the next attempt sees them as new
		// again and pagination does not stop early.
		if err := w.store.RemoveCollectedByFor(ctx, itemID); err != nil {
			return err
		}
		waitFor(ctx, w.pause)
		return nil
	case errors.Is(err, bandcamp.ErrNotFound):
		log.WithField("item_id", itemID).Info("item not found, retiring")
		recordOutcome(ctx, kindItem, outcomeNotFound)
		return w.finish(ctx, itemID)
	default:
		if ctx.Err() != nil {
			return nil
		}
		log.WithField("item_id", itemID).WithError(err).Error("item crawl failed")
		recordOutcome(ctx, kindItem, outcomeError)
		return nil // stays queued, retried next tick
	}
}

// next peeks the queue, falling back to a stale known item when the worker
// crawls beyond explicit requests.
func (w *ItemWorker) next(ctx context.Context) (int64, error) {
	itemID, err := w.store.NextQueuedItem(ctx)
	if errors.Is(err, storage.ErrNotFound) && w.crawlAll {
		return w.store.NextStaleItem(ctx)
	}
	return itemID, err
}

// finish marks the item crawled and releases the queue entry.
func (w *ItemWorker) finish(ctx context.Context, itemID int64) error {
	if err := w.store.MarkItemDone(ctx, itemID); err != nil {
		return err
	}
	return w.store.RemoveItemFromQueue(ctx, itemID)
}
