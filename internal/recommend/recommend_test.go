package recommend

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangraph/fangraph/internal/storage"
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

func seedFan(t *testing.T, s *sqlite.Store, fanID int64, username string) {
	t.Helper()
	err := s.UpsertCollector(context.Background(), types.Collector{
		FanID:    fanID,
		Username: username,
		Name:     username,
	})
	require.NoError(t, err)
}

// seedOwns writes the items and the collects edges tying them to fanID.
func seedOwns(t *testing.T, s *sqlite.Store, fanID int64, itemIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range itemIDs {
		err := s.UpsertItem(ctx, types.Item{
			ItemID:    id,
			ItemType:  types.ItemTypeAlbum,
			ItemTitle: fmt.Sprintf("Album %d", id),
			ItemURL:   fmt.Sprintf("https://band.bandcamp.com/album/a%d", id),
			BandID:    1,
			BandName:  "Band",
		})
		require.NoError(t, err)
		_, err = s.InsertCollects(ctx, fanID, id)
		require.NoError(t, err)
	}
}

func TestRecommendationsScoresByOverlap(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedFan(t, s, 1, "amy")
	seedOwns(t, s, 1, 10, 11)
	seedFan(t, s, 2, "bob")
	seedOwns(t, s, 2, 10, 11, 12)
	seedFan(t, s, 3, "cai")
	seedOwns(t, s, 3, 10, 11, 12, 13)
	// dan shares only one item with amy and must not vote at all.
	seedFan(t, s, 4, "dan")
	seedOwns(t, s, 4, 10, 14)

	got, err := Recommendations(ctx, s, "amy", 2.0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// bob and cai each overlap on two items, so each vote weighs 2^2 = 4.
	assert.Equal(t, int64(12), got[0].ItemID)
	assert.Equal(t, 8.0, got[0].Score)
	assert.Equal(t, int64(13), got[1].ItemID)
	assert.Equal(t, 4.0, got[1].Score)
	assert.Equal(t, "Album 12", got[0].ItemTitle)
}

func TestRecommendationsBoostExponent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedFan(t, s, 1, "amy")
	seedOwns(t, s, 1, 10, 11)
	seedFan(t, s, 2, "bob")
	seedOwns(t, s, 2, 10, 11, 12)
	seedFan(t, s, 3, "cai")
	seedOwns(t, s, 3, 10, 11, 12, 13)

	got, err := Recommendations(ctx, s, "amy", 3.0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 16.0, got[0].Score)
	assert.Equal(t, 8.0, got[1].Score)
}

func TestRecommendationsNeverRepeatOwnedItems(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedFan(t, s, 1, "amy")
	seedOwns(t, s, 1, 10, 11, 12)
	seedFan(t, s, 2, "bob")
	seedOwns(t, s, 2, 10, 11, 12)

	// bob's collection is identical to amy's, so nothing is left to suggest.
	got, err := Recommendations(ctx, s, "amy", 2.0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecommendationsTieBreaksOnNewerItem(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedFan(t, s, 1, "amy")
	seedOwns(t, s, 1, 10, 11)
	seedFan(t, s, 2, "bob")
	seedOwns(t, s, 2, 10, 11, 12)
	seedFan(t, s, 3, "cai")
	seedOwns(t, s, 3, 10, 11, 13)

	got, err := Recommendations(ctx, s, "amy", 2.0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, got[0].Score, got[1].Score)
	assert.Equal(t, int64(13), got[0].ItemID)
	assert.Equal(t, int64(12), got[1].ItemID)
}

func TestRecommendationsUnknownFan(t *testing.T) {
	s := newStore(t)

	_, err := Recommendations(context.Background(), s, "nobody", 2.0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecommendationsTinyCollection(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedFan(t, s, 1, "amy")
	seedOwns(t, s, 1, 10)
	seedFan(t, s, 2, "bob")
	seedOwns(t, s, 2, 10, 11)

	// A single owned item cannot overlap anyone by two, bob included.
	got, err := Recommendations(ctx, s, "amy", 2.0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecommendationsCapAtFifty(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedFan(t, s, 1, "amy")
	seedOwns(t, s, 1, 10, 11)
	seedFan(t, s, 2, "bob")
	seedOwns(t, s, 2, 10, 11)
	for id := int64(1000); id < 1060; id++ {
		seedOwns(t, s, 2, id)
	}

	got, err := Recommendations(ctx, s, "amy", 2.0)
	require.NoError(t, err)
	require.Len(t, got, 50)
	// All sixty candidates tie, so the newest fifty survive the cut.
	assert.Equal(t, int64(1059), got[0].ItemID)
	assert.Equal(t, int64(1010), got[49].ItemID)
}
