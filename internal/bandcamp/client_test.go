package bandcamp

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangraph/fangraph/internal/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithBaseURL(srv.URL)
}

func fanPageBody(blob string) string {
	return `<!DOCTYPE html><html><head><title>collection</title></head><body>` +
		`<div id="pagedata" data-blob="` + html.EscapeString(blob) + `"></div>` +
		`</body></html>`
}

func TestFetchFanPage(t *testing.T) {
	blob := `{
		"fan_data": {"fan_id": 42, "username": "amy", "name": "Amy", "token": "1:2:a::"},
		"collection_data": {"last_token": "9:8:a::", "item_count": 700, "batch_size": 20},
		"item_cache": {"collection": {
			"a100": {"item_id": 100, "item_type": "album", "item_title": "LP1",
			         "item_url": "https://x.bandcamp.com/album/lp1", "band_id": 7,
			         "band_name": "X", "token": "t100", "also_collected_count": 3},
			"t200": {"item_id": 200, "item_type": "track", "item_title": "Song",
			         "item_url": "https://y.bandcamp.com/track/song", "album_id": 900,
			         "album_title": "Album Of Song", "band_id": 8, "band_name": "Y",
			         "also_collected_count": 4}
		}}
	}`
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/amy", r.URL.Path)
		w.Write([]byte(fanPageBody(blob)))
	}))

	page, err := client.FetchFanPage(context.Background(), "amy")
	require.NoError(t, err)

	assert.Equal(t, int64(42), page.FanData.FanID)
	assert.Equal(t, "amy", page.FanData.Username)
	require.NotNil(t, page.FanData.Token)
	assert.Equal(t, "1:2:a::", *page.FanData.Token)

	require.NotNil(t, page.CollectionData.LastToken)
	assert.Equal(t, "9:8:a::", *page.CollectionData.LastToken)
	assert.Equal(t, int64(700), page.CollectionData.ItemCount)
	assert.Equal(t, int64(20), page.CollectionData.BatchSize)

	require.Len(t, page.ItemCache.Collection, 2)
	album := page.ItemCache.Collection["a100"]
	assert.Equal(t, types.ItemTypeAlbum, album.ItemType)
	assert.Nil(t, album.AlbumID)

	track := page.ItemCache.Collection["t200"]
	require.NotNil(t, track.AlbumID)
	assert.Equal(t, int64(900), *track.AlbumID)
	assert.Nil(t, track.Token)
}

func TestFetchFanPageStatuses(t *testing.T) {
	for _, tc := range []struct {
		status  int
		wantErr error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
	} {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := client.FetchFanPage(context.Background(), "amy")
		assert.True(t, errors.Is(err, tc.wantErr), "status %d: got %v", tc.status, err)
	}
}

func TestFetchFanPageServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := client.FetchFanPage(context.Background(), "amy")

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindNetwork, cerr.Kind)
	// Network failures are transient: they match neither branch sentinel,
	// so the workers leave the entity queued.
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFetchFanPageNotAFanPage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>label landing page</body></html>`))
	}))
	_, err := client.FetchFanPage(context.Background(), "somelabel")
	assert.True(t, errors.Is(err, ErrPage))
}

func TestFetchCollectionItems(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/fancollection/1/collection_items", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(500), req["count"])
		assert.Equal(t, float64(42), req["fan_id"])
		assert.Equal(t, "9:8:a::", req["older_than_token"])

		w.Write([]byte(`{
			"items": [{"item_id": 100, "item_type": "album", "item_title": "LP1",
			           "item_url": "https://x.bandcamp.com/album/lp1", "band_id": 7,
			           "band_name": "X", "token": "t100", "also_collected_count": 3}],
			"more_available": true
		}`))
	}))

	page, err := client.FetchCollectionItems(context.Background(), 42, "9:8:a::")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(100), page.Items[0].ItemID)
	assert.True(t, page.MoreAvailable)
}

func itemPageBody(blob, props string) string {
	head := `<head><title>item</title>`
	if props != "" {
		head += `<meta name="bc-page-properties" content="` + html.EscapeString(props) + `">`
	}
	head += `</head>`
	return `<!DOCTYPE html><html>` + head + `<body>` +
		`<div id="collectors-data" data-blob="` + html.EscapeString(blob) + `"></div>` +
		`</body></html>`
}

func TestFetchItemPage(t *testing.T) {
	blob := `{
		"thumbs": [
			{"fan_id": 1, "username": "amy", "name": "Amy", "token": "tk1"},
			{"fan_id": 2, "username": "bob", "name": "Bob"}
		],
		"more_thumbs_available": true,
		"shown_thumbs": [{"fan_id": 1, "username": "amy", "name": "Amy"}]
	}`
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/album/lp1", r.URL.Path)
		w.Write([]byte(itemPageBody(blob, `{"item_type":"a","item_id":321}`)))
	}))

	page, err := client.FetchItemPage(context.Background(), client.baseURL+"/album/lp1")
	require.NoError(t, err)

	require.Len(t, page.Thumbs, 2)
	assert.Equal(t, "amy", page.Thumbs[0].Username)
	require.NotNil(t, page.Thumbs[0].Token)
	assert.Nil(t, page.Thumbs[1].Token)
	assert.True(t, page.MoreThumbsAvailable)

	props, err := page.PageProperties()
	require.NoError(t, err)
	assert.Equal(t, PageProperties{ItemType: "a", ItemID: 321}, props)
}

func TestFetchItemPageSubscription(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="subscription-collectors-data" data-blob="{}"></div></body></html>`))
	}))

	_, err := client.FetchItemPage(context.Background(), client.baseURL+"/album/sub")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFetchItemPageWithoutCollectors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>no collectors module here</p></body></html>`))
	}))

	_, err := client.FetchItemPage(context.Background(), client.baseURL+"/album/odd")
	assert.True(t, errors.Is(err, ErrPage))
}

func TestFetchMoreThumbs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tralbumcollectors/2/thumbs", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(500), req["count"])
		assert.Equal(t, "tk1", req["token"])
		assert.Equal(t, float64(321), req["tralbum_id"])
		assert.Equal(t, "a", req["tralbum_type"])

		w.Write([]byte(`{
			"results": [{"fan_id": 3, "username": "cai", "name": "Cai", "token": "tk2"}],
			"more_available": false
		}`))
	}))

	page, err := client.FetchMoreThumbs(context.Background(), "tk1", 321, "a")
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "cai", page.Results[0].Username)
	assert.False(t, page.MoreAvailable)
}

func TestValidItemURL(t *testing.T) {
	for url, want := range map[string]bool{
		"https://band.bandcamp.com/album/x":     true,
		"http://some-band.bandcamp.com/track/y": true,
		"https://bandcamp.com/discover":         false,
		"https://example.com/album/x":           false,
		"https://band.bandcamp.com.evil.org/a":  true, // prefix match only
		"ftp://band.bandcamp.com/album/x":       false,
	} {
		assert.Equal(t, want, ValidItemURL(url), "url %s", url)
	}
}

func TestCollapse(t *testing.T) {
	tok := "t"
	albumID := int64(900)
	albumTitle := "Album Of Song"

	track := CollectionEntry{
		ItemID: 200, ItemType: types.ItemTypeTrack, ItemTitle: "Song",
		ItemURL: "https://y.bandcamp.com/track/song",
		AlbumID: &albumID, AlbumTitle: &albumTitle,
		BandID: 8, BandName: "Y", Token: &tok, AlsoCollectedCount: 4,
	}
	got := track.Collapse()
	assert.Equal(t, int64(900), got.ItemID)
	assert.Equal(t, "Album Of Song", got.ItemTitle)
	// Type and URL stay those of the entry itself.
	assert.Equal(t, types.ItemTypeTrack, got.ItemType)
	assert.Equal(t, "https://y.bandcamp.com/track/song", got.ItemURL)

	album := CollectionEntry{ItemID: 100, ItemType: types.ItemTypeAlbum, ItemTitle: "LP1"}
	flat := album.Collapse()
	assert.Equal(t, int64(100), flat.ItemID)
	assert.Equal(t, "LP1", flat.ItemTitle)
}
