// Package storage defines the persistence contract for the crawl graph.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and value types referenced by both the implementation
// and its consumers (crawl workers, progress manager, recommender, server).
package storage

import (
	"context"
	"errors"

	"github.com/fangraph/fangraph/internal/types"
)

// ErrNotFound is returned when a requested row does not exist in the database.
var ErrNotFound = errors.New("not found")

// Stats is a point-in-time snapshot of graph and queue sizes.
type Stats struct {
	Collectors       int64 `json:"collectors"`
	Items            int64 `json:"items"`
	CollectsEdges    int64 `json:"collects_edges"`
	CollectedByEdges int64 `json:"collected_by_edges"`
	QueuedCollectors int64 `json:"queued_collectors"`
	QueuedItems      int64 `json:"queued_items"`
	OpenTargets      int64 `json:"open_targets"`
}

// Store is the interface satisfied by *sqlite.Store.
// Consumers depend on this interface rather than on the concrete type so that
// alternative implementations (mocks, proxies, etc.) can be substituted.
//
// Edge inserts report whether the edge was newly created; the crawl
// paginators stop once a whole page yields nothing new.
type Store interface {
	// Collectors. The crawl side addresses collectors by username (that is
	// what the queue join and the remote API hand back); fan IDs appear once
	// a collector's page has been seen.
	UpsertCollector(ctx context.Context, c types.Collector) error
	FanIDForUsername(ctx context.Context, username string) (int64, error)
	CollectorFresh(ctx context.Context, username string) (bool, error)
	MarkCollectorDone(ctx context.Context, username string) error
	InsertCollects(ctx context.Context, fanID, itemID int64) (bool, error)
	RemoveCollectsFor(ctx context.Context, username string) error
	CollectionSize(ctx context.Context, username string) (int64, error)

	// Items
	UpsertItem(ctx context.Context, it types.Item) error
	GetItem(ctx context.Context, itemID int64) (types.Item, error)
	ItemFresh(ctx context.Context, itemID int64) (bool, error)
	MarkItemDone(ctx context.Context, itemID int64) error
	InsertCollectedBy(ctx context.Context, itemID, fanID int64) (bool, error)
	RemoveCollectedByFor(ctx context.Context, itemID int64) error

	// Work queues. Next* peeks without removing; entries leave the queue
	// only through the explicit Remove*FromQueue calls. The stale variants
	// back the --crawl sweep when a queue runs dry.
	EnqueueCollector(ctx context.Context, fanID int64) error
	NextQueuedCollector(ctx context.Context) (string, error)
	NextStaleCollector(ctx context.Context) (string, error)
	RemoveCollectorFromQueue(ctx context.Context, username string) error
	EnqueueItem(ctx context.Context, itemID int64) error
	NextQueuedItem(ctx context.Context) (int64, error)
	NextStaleItem(ctx context.Context) (int64, error)
	RemoveItemFromQueue(ctx context.Context, itemID int64) error

	// Targets
	UpsertTarget(ctx context.Context, t types.Target) error
	GetTarget(ctx context.Context, fanID int64) (types.Target, error)
	DeleteTarget(ctx context.Context, fanID int64) error
	AllTargetFanIDs(ctx context.Context) ([]int64, error)

	// Stage requirement sets and recommendation input
	StaleItemsOf(ctx context.Context, fanID int64) ([]int64, error)
	StaleCollectorsSharing(ctx context.Context, fanID int64) ([]int64, error)
	RelevantUsersWithItems(ctx context.Context, username string) (map[int64][]int64, error)

	// Statistics
	Stats(ctx context.Context) (Stats, error)

	// Lifecycle
	Close() error
}
