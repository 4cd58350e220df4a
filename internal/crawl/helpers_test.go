package crawl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fangraph/fangraph/internal/bandcamp"
	"github.com/fangraph/fangraph/internal/storage/sqlite"
	"github.com/fangraph/fangraph/internal/types"
)

// newStore opens a throwaway on-disk store for one test.
func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeFetcher scripts the remote side of a crawl. Unset handlers fail
// their calls so tests notice unexpected requests; every call is recorded
// in order.
type fakeFetcher struct {
	fanPage         func(username string) (*bandcamp.FanPage, error)
	collectionItems func(fanID int64, olderThan string) (*bandcamp.CollectionPage, error)
	itemPage        func(itemURL string) (*bandcamp.ItemPage, error)
	moreThumbs      func(token string, tralbumID int64, tralbumType string) (*bandcamp.ThumbsPage, error)

	calls []string
}

func (f *fakeFetcher) FetchFanPage(_ context.Context, username string) (*bandcamp.FanPage, error) {
	f.calls = append(f.calls, "fan:"+username)
	if f.fanPage == nil {
		return nil, errors.New("unexpected FetchFanPage call")
	}
	return f.fanPage(username)
}

func (f *fakeFetcher) FetchCollectionItems(_ context.Context, fanID int64, olderThan string) (*bandcamp.CollectionPage, error) {
	f.calls = append(f.calls, "items:"+olderThan)
	if f.collectionItems == nil {
		return nil, errors.New("unexpected FetchCollectionItems call")
	}
	return f.collectionItems(fanID, olderThan)
}

func (f *fakeFetcher) FetchItemPage(_ context.Context, itemURL string) (*bandcamp.ItemPage, error) {
	f.calls = append(f.calls, "page:"+itemURL)
	if f.itemPage == nil {
		return nil, errors.New("unexpected FetchItemPage call")
	}
	return f.itemPage(itemURL)
}

func (f *fakeFetcher) FetchMoreThumbs(_ context.Context, token string, tralbumID int64, tralbumType string) (*bandcamp.ThumbsPage, error) {
	f.calls = append(f.calls, "thumbs:"+token)
	if f.moreThumbs == nil {
		return nil, errors.New("unexpected FetchMoreThumbs call")
	}
	return f.moreThumbs(token, tralbumID, tralbumType)
}

// albumEntry builds a collection entry for an album, with the token the
// collection API paginates by.
func albumEntry(id int64, token string) bandcamp.CollectionEntry {
	return bandcamp.CollectionEntry{
		ItemID:    id,
		ItemType:  types.ItemTypeAlbum,
		ItemTitle: fmt.Sprintf("Album %d", id),
		ItemURL:   fmt.Sprintf("https://band.bandcamp.com/album/a%d", id),
		BandID:    1,
		BandName:  "Band",
		Token:     &token,
	}
}

// collectorThumb builds one collector thumb with its pagination token.
func collectorThumb(fanID int64, token string) types.Collector {
	return types.Collector{
		FanID:    fanID,
		Username: fmt.Sprintf("fan%d", fanID),
		Name:     fmt.Sprintf("Fan %d", fanID),
		Token:    &token,
	}
}

// initialPage builds a fan page whose item cache holds the given entries.
func initialPage(fan types.Collector, itemCount, batchSize int64, lastToken string, entries ...bandcamp.CollectionEntry) *bandcamp.FanPage {
	collection := make(map[string]bandcamp.CollectionEntry, len(entries))
	for i, e := range entries {
		collection[fmt.Sprintf("cache%d", i)] = e
	}
	return &bandcamp.FanPage{
		FanData: fan,
		CollectionData: bandcamp.CollectionData{
			LastToken: &lastToken,
			ItemCount: itemCount,
			BatchSize: batchSize,
		},
		ItemCache: bandcamp.ItemCache{Collection: collection},
	}
}
