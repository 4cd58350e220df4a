package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/internal/types"
)

func TestUpsertItemRoundtrip(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()

	tok := "1234:5678:a::"
	want := types.Item{
		ItemID:             100,
		ItemType:           types.ItemTypeAlbum,
		ItemTitle:          "Selected Ambient Works",
		ItemURL:            "https://apxtwin.bandcamp.com/album/selected-ambient-works",
		BandID:             77,
		BandName:           "Aphex Twin",
		Token:              &tok,
		AlsoCollectedCount: 12345,
	}
	if err := store.UpsertItem(ctx, want); err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}

	got, err := store.GetItem(ctx, 100)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.ItemID != want.ItemID || got.ItemType != want.ItemType ||
		got.ItemTitle != want.ItemTitle || got.ItemURL != want.ItemURL ||
		got.BandID != want.BandID || got.BandName != want.BandName ||
		got.AlsoCollectedCount != want.AlsoCollectedCount {
		t.Errorf("item mismatch: got %+v, want %+v", got, want)
	}
	if got.Token == nil || *got.Token != tok {
		t.Errorf("token mismatch: got %v, want %q", got.Token, tok)
	}
	if got.LastUpdated != 0 {
		t.Errorf("new item should start uncrawled, got last_updated %d", got.LastUpdated)
	}

	_, err = store.GetItem(ctx, 999)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown item, got %v", err)
	}
}

func TestUpsertItemKeepsIdentityAndFirstToken(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()

	if err := store.UpsertItem(ctx, types.Item{
		ItemID: 100, ItemType: types.ItemTypeAlbum, ItemTitle: "First Title",
	}); err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}

	tok1 := "first-token"
	if err := store.UpsertItem(ctx, types.Item{
		ItemID: 100, ItemType: types.ItemTypeTrack, ItemTitle: "Second Title", Token: &tok1,
	}); err != nil {
		t.Fatalf("second UpsertItem failed: %v", err)
	}

	tok2 := "second-token"
	if err := store.UpsertItem(ctx, types.Item{
		ItemID: 100, ItemType: types.ItemTypeTrack, ItemTitle: "Third Title", Token: &tok2,
	}); err != nil {
		t.Fatalf("third UpsertItem failed: %v", err)
	}

	got, err := store.GetItem(ctx, 100)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.ItemTitle != "First Title" {
		t.Errorf("title rewritten on conflict: got %q", got.ItemTitle)
	}
	if got.ItemType != types.ItemTypeAlbum {
		t.Errorf("type rewritten on conflict: got %q", got.ItemType)
	}
	if got.Token == nil || *got.Token != tok1 {
		t.Errorf("token should keep first non-NULL write: got %v, want %q", got.Token, tok1)
	}
}

func TestInsertCollectedByReportsNewEdges(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()

	inserted, err := store.InsertCollectedBy(ctx, 100, 1)
	if err != nil {
		t.Fatalf("InsertCollectedBy failed: %v", err)
	}
	if !inserted {
		t.Error("first insert should report a new edge")
	}

	inserted, err = store.InsertCollectedBy(ctx, 100, 1)
	if err != nil {
		t.Fatalf("duplicate InsertCollectedBy failed: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should not report a new edge")
	}

	inserted, err = store.InsertCollectedBy(ctx, 100, 2)
	if err != nil {
		t.Fatalf("InsertCollectedBy failed: %v", err)
	}
	if !inserted {
		t.Error("distinct fan should report a new edge")
	}
}

func TestRemoveCollectedByFor(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()

	for _, edge := range [][2]int64{{100, 1}, {100, 2}, {200, 1}} {
		if _, err := store.InsertCollectedBy(ctx, edge[0], edge[1]); err != nil {
			t.Fatalf("InsertCollectedBy failed: %v", err)
		}
	}

	if err := store.RemoveCollectedByFor(ctx, 100); err != nil {
		t.Fatalf("RemoveCollectedByFor failed: %v", err)
	}

	var n100, n200 int64
	if err := store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM collected_by WHERE item_id = 100").Scan(&n100); err != nil {
		t.Fatalf("failed to count edges: %v", err)
	}
	if err := store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM collected_by WHERE item_id = 200").Scan(&n200); err != nil {
		t.Fatalf("failed to count edges: %v", err)
	}
	if n100 != 0 {
		t.Errorf("expected item 100 edges removed, got %d", n100)
	}
	if n200 != 1 {
		t.Errorf("item 200 edges touched by item 100 rollback: got %d, want 1", n200)
	}
}

func TestItemFreshness(t *testing.T) {
	store := newTestStore(t, "")
	ctx := context.Background()

	fresh, err := store.ItemFresh(ctx, 100)
	if err != nil {
		t.Fatalf("ItemFresh on missing row failed: %v", err)
	}
	if fresh {
		t.Error("missing item should not be fresh")
	}

	if err := store.UpsertItem(ctx, types.Item{ItemID: 100, ItemType: types.ItemTypeAlbum}); err != nil {
		t.Fatalf("UpsertItem failed: %v", err)
	}
	fresh, err = store.ItemFresh(ctx, 100)
	if err != nil {
		t.Fatalf("ItemFresh failed: %v", err)
	}
	if fresh {
		t.Error("never-crawled item should not be fresh")
	}

	if err := store.MarkItemDone(ctx, 100); err != nil {
		t.Fatalf("MarkItemDone failed: %v", err)
	}
	fresh, err = store.ItemFresh(ctx, 100)
	if err != nil {
		t.Fatalf("ItemFresh failed: %v", err)
	}
	if !fresh {
		t.Error("just-crawled item should be fresh")
	}

	ageRows(t, store, "item", freshnessSeconds)
	fresh, err = store.ItemFresh(ctx, 100)
	if err != nil {
		t.Fatalf("ItemFresh failed: %v", err)
	}
	if fresh {
		t.Error("item at the freshness boundary should be stale")
	}
}
