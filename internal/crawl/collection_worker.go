package crawl

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fangraph/fangraph/internal/bandcamp"
	"github.com/fangraph/fangraph/internal/storage"
)

const (
	defaultTick  = 3 * time.Second
	defaultPause = 10 * time.Second
)

// CollectionWorker drains the collector queue, crawling one fan's
// collection per tick.
type CollectionWorker struct {
	store   storage.Store
	fetcher CollectionFetcher

	// crawlAll falls back to stale known fans when the queue is empty.
	crawlAll bool

	tick  time.Duration
	pause time.Duration
}

// NewCollectionWorker returns a worker ticking every 3 seconds.
func NewCollectionWorker(store storage.Store, fetcher CollectionFetcher, crawlAll bool) *CollectionWorker {
	return &CollectionWorker{
		store:    store,
		fetcher:  fetcher,
		crawlAll: crawlAll,
		tick:     defaultTick,
		pause:    defaultPause,
	}
}

// SetIntervals overrides the tick and the post-rate-limit pause.
// Used by tests to avoid multi-second sleeps.
func (w *CollectionWorker) SetIntervals(tick, pause time.Duration) {
	w.tick = tick
	w.pause = pause
}

// Run processes the queue until ctx is cancelled, one entry per tick with
// a pass before the first tick. It returns non-nil only on database
// failure; the supervisor restarts it in that case.
func (w *CollectionWorker) Run(ctx context.Context) error {
	log.WithField("interval", w.tick).Info("collection worker started")
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

// processNext crawls at most one queued fan. Fetch outcomes are handled in
// place; only database errors bubble up.
func (w *CollectionWorker) processNext(ctx context.Context) error {
	username, err := w.next(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil // nothing queued
	}
	if err != nil {
		return err
	}

	switch err := FetchCollection(ctx, w.store, w.fetcher, username, false); {
	case err == nil:
		recordOutcome(ctx, kindCollection, outcomeDone)
		return w.finish(ctx, username)
	case errors.Is(err, bandcamp.ErrRateLimited):
		log.WithField("username", username).Warn("rate limited, pausing")
		recordOutcome(ctx, kindCollection, outcomeRateLimited)
		// Drop the half-written edges so the next attempt sees them as new
		// again and pagination does not stop early.
		if err := w.store.RemoveCollectsFor(ctx, username); err != nil {
			return err
		}
		waitFor(ctx, w.pause)
		return nil
	case errors.Is(err, bandcamp.ErrNotFound):
		log.WithField("username", username).Info("collector not found, retiring")
		recordOutcome(ctx, kindCollection, outcomeNotFound)
		return w.finish(ctx, username)
	default:
		if ctx.Err() != nil {
			return nil
		}
		log.WithField("username", username).WithError(err).Error("collection crawl failed")
		recordOutcome(ctx, kindCollection, outcomeError)
		return nil // stays queued, retried next tick
	}
}

// next peeks the queue, falling back to a stale known fan when the worker
// crawls beyond explicit requests.
func (w *CollectionWorker) next(ctx context.Context) (string, error) {
	username, err := w.store.NextQueuedCollector(ctx)
	if errors.Is(err, storage.ErrNotFound) && w.crawlAll {
		return w.store.NextStaleCollector(ctx)
	}
	return username, err
}

// finish marks the fan crawled and releases the queue entry.
func (w *CollectionWorker) finish(ctx context.Context, username string) error {
	if err := w.store.MarkCollectorDone(ctx, username); err != nil {
		return err
	}
	return w.store.RemoveCollectorFromQueue(ctx, username)
}
