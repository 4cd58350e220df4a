// Package fangraph provides a minimal public API for working with a
// fangraph database programmatically.
//
// Most tooling can query the SQLite cache directly; this package exports
// only the domain types, a store opener, and the recommender for Go
// programs that want to read the collection graph out of process.
package fangraph

import (
	"context"

	"github.com/fangraph/fangraph/internal/recommend"
	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/internal/storage/sqlite"
	"github.com/fangraph/fangraph/internal/types"
)

// Core domain types.
type (
	Collector   = types.Collector
	Item        = types.Item
	ItemType    = types.ItemType
	ScoredItem  = types.ScoredItem
	Target      = types.Target
	TargetStage = types.TargetStage
)

// Item type tags as the remote service names them.
const (
	ItemTypeAlbum        = types.ItemTypeAlbum
	ItemTypeTrack        = types.ItemTypeTrack
	ItemTypePackage      = types.ItemTypePackage
	ItemTypeLepledge     = types.ItemTypeLepledge
	ItemTypeSubscription = types.ItemTypeSubscription
)

// Crawl target stages.
const (
	StageItems      = types.StageItems
	StageCollectors = types.StageCollectors
	StageDone       = types.StageDone
)

// Store is the storage interface satisfied by the SQLite cache.
type Store = storage.Store

// Stats is a point-in-time snapshot of graph and queue sizes.
type Stats = storage.Stats

// ErrNotFound is returned for lookups of fans or items the cache has
// never seen.
var ErrNotFound = storage.ErrNotFound

// OpenStore opens a fangraph SQLite cache, creating the file and its
// schema when it does not exist yet.
func OpenStore(ctx context.Context, path string) (Store, error) {
	return sqlite.New(ctx, path)
}

// Recommendations scores up to fifty items for username from an open
// store. See the serve API's get_recommendations for the boost semantics.
func Recommendations(ctx context.Context, store Store, username string, boost float64) ([]ScoredItem, error) {
	return recommend.Recommendations(ctx, store, username, boost)
}
