package bandcamp

import (
	"encoding/json"
	"errors"

	"github.com/fangraph/fangraph/internal/types"
)

// FanPage is the decoded data-blob of a fan's public collection page.
type FanPage struct {
	FanData        types.Collector `json:"fan_data"`
	CollectionData CollectionData  `json:"collection_data"`
	ItemCache      ItemCache       `json:"item_cache"`
}

// CollectionData summarizes the fan's collection and seeds pagination.
type CollectionData struct {
	LastToken *string `json:"last_token"`
	ItemCount int64   `json:"item_count"`
	BatchSize int64   `json:"batch_size"`
}

// ItemCache holds the first batch of collection entries, keyed by an
// opaque cache key the crawler ignores.
type ItemCache struct {
	Collection map[string]CollectionEntry `json:"collection"`
}

// CollectionEntry is one collected item as the fan collection surfaces
// return it. Track entries reference their parent album through the
// album_* fields; Collapse folds them together.
type CollectionEntry struct {
	ItemID             int64          `json:"item_id"`
	ItemType           types.ItemType `json:"item_type"`
	ItemTitle          string         `json:"item_title"`
	ItemURL            string         `json:"item_url"`
	AlbumID            *int64         `json:"album_id"`
	AlbumTitle         *string        `json:"album_title"`
	BandID             int64          `json:"band_id"`
	BandName           string         `json:"band_name"`
	Token              *string        `json:"token"`
	AlsoCollectedCount int64          `json:"also_collected_count"`
}

// Collapse returns the entry in storable form. A track with album metadata
// takes its album's id and title so that buying one track and buying the
// whole album count as the same node in the graph; the entry's own type
// and URL are kept as-is.
func (e CollectionEntry) Collapse() types.Item {
	it := types.Item{
		ItemID:             e.ItemID,
		ItemType:           e.ItemType,
		ItemTitle:          e.ItemTitle,
		ItemURL:            e.ItemURL,
		BandID:             e.BandID,
		BandName:           e.BandName,
		Token:              e.Token,
		AlsoCollectedCount: e.AlsoCollectedCount,
	}
	if e.AlbumID != nil {
		it.ItemID = *e.AlbumID
	}
	if e.AlbumTitle != nil {
		it.ItemTitle = *e.AlbumTitle
	}
	return it
}

// CollectionPage is one response of the collection items API.
type CollectionPage struct {
	Items         []CollectionEntry `json:"items"`
	MoreAvailable bool              `json:"more_available"`
}

// CollectorsData is the decoded data-blob of an item page's collectors
// module. Thumbs carry the pagination tokens; ShownThumbs is the subset
// rendered inline and is not used for crawling.
type CollectorsData struct {
	Thumbs              []types.Collector `json:"thumbs"`
	MoreThumbsAvailable bool              `json:"more_thumbs_available"`
	ShownThumbs         []types.Collector `json:"shown_thumbs"`
}

// PageProperties is the bc-page-properties meta payload. It names the
// tralbum identity the thumbs API paginates by, which is not always the
// item id the entry was stored under.
type PageProperties struct {
	ItemType string `json:"item_type"`
	ItemID   int64  `json:"item_id"`
}

// ThumbsPage is one response of the tralbum collectors API.
type ThumbsPage struct {
	Results       []types.Collector `json:"results"`
	MoreAvailable bool              `json:"more_available"`
}

// ItemPage is the parsed collectors view of an item's public page.
type ItemPage struct {
	CollectorsData

	// RawPageProperties is the undecoded bc-page-properties payload.
	// Parsed on demand: the meta tag is only required when pagination
	// continues past the inline thumbs.
	RawPageProperties string
}

// PageProperties decodes the page's tralbum identity.
func (p *ItemPage) PageProperties() (PageProperties, error) {
	if p.RawPageProperties == "" {
		return PageProperties{}, clientErr(KindPage, "page properties", errors.New("no bc-page-properties meta"))
	}
	var props PageProperties
	if err := json.Unmarshal([]byte(p.RawPageProperties), &props); err != nil {
		return PageProperties{}, clientErr(KindSerialization, "decode bc-page-properties", err)
	}
	return props, nil
}
