// Package types defines the core data structures for the fangraph crawler:
// collectors (Bandcamp fans), the items they collect, and the crawl targets
// that track recommendation readiness per fan.
package types

import "time"

// FreshnessWindow is how long a crawled entity stays fresh. Entities older
// than this are eligible for re-crawling, and stage requirement sets are
// built from entities that fell out of the window.
const FreshnessWindow = 30 * 24 * time.Hour

// ItemType categorizes a collected item. The values are exactly the
// spellings Bandcamp uses in collection payloads.
type ItemType string

const (
	ItemTypeAlbum        ItemType = "album"
	ItemTypeTrack        ItemType = "track"
	ItemTypePackage      ItemType = "package"
	ItemTypeLepledge     ItemType = "lepledge"
	ItemTypeSubscription ItemType = "subscription"
)

// IsValid returns true if the item type is a known value
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeAlbum, ItemTypeTrack, ItemTypePackage, ItemTypeLepledge, ItemTypeSubscription:
		return true
	}
	return false
}

// Collector represents a Bandcamp fan whose collection is (or will be)
// part of the graph.
type Collector struct {
	FanID    int64   `json:"fan_id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Token    *string `json:"token"` // pagination token; nil until first observed

	// LastUpdated is unix seconds of the last completed crawl.
	// Zero means the collection was never fully crawled.
	LastUpdated int64 `json:"-"`
}

// Item represents a collected album or track as stored in the graph.
// Track entries that belong to an album are collapsed into the album row
// before they reach storage (see bandcamp.CollectionEntry).
type Item struct {
	ItemID             int64    `json:"item_id"`
	ItemType           ItemType `json:"item_type"`
	ItemTitle          string   `json:"item_title"`
	ItemURL            string   `json:"item_url"`
	BandID             int64    `json:"band_id"`
	BandName           string   `json:"band_name"`
	Token              *string  `json:"token"`
	AlsoCollectedCount int64    `json:"also_collected_count"`
	LastUpdated        int64    `json:"-"`
}

// ScoredItem is an Item with its recommendation weight attached.
type ScoredItem struct {
	Item
	Score float64 `json:"score"`
}

// TargetStage is the phase a crawl target is in.
type TargetStage int64

const (
	// StageItems refreshes the stale items the fan collects.
	StageItems TargetStage = 1
	// StageCollectors refreshes the stale collectors sharing at least two
	// items with the fan.
	StageCollectors TargetStage = 2
	// StageDone means nothing is left to crawl. It is never stored; a fan
	// with no target row is done.
	StageDone TargetStage = 3
)

// IsValid returns true if the stage is a known value
func (s TargetStage) IsValid() bool {
	switch s {
	case StageItems, StageCollectors, StageDone:
		return true
	}
	return false
}

func (s TargetStage) String() string {
	switch s {
	case StageItems:
		return "items"
	case StageCollectors:
		return "collectors"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// Target tracks how far along the two-stage crawl is for one fan.
// CountLeft shrinks as workers drain the stage's requirement set;
// CountTotal never shrinks for the life of the row.
type Target struct {
	FanID      int64       `json:"fan_id"`
	Stage      TargetStage `json:"stage"`
	CountLeft  int64       `json:"count_left"`
	CountTotal int64       `json:"count_total"`
	ETA        int64       `json:"eta"` // seconds
}

// DoneTarget is the sentinel reported for a fan with no open target row.
func DoneTarget(fanID int64) Target {
	return Target{FanID: fanID, Stage: StageDone}
}
