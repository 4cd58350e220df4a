package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fangraph/fangraph/internal/types"
)

// Same upsert policy as collectors: identity fields stick, only a NULL
// token fills in.
const upsertItemSQL = `
INSERT INTO item (
    item_id, item_type, item_title, item_url, band_id, band_name, token,
    also_collected_count, last_updated
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
ON CONFLICT DO UPDATE SET
    token = CASE WHEN token IS NULL THEN excluded.token ELSE token END`

// UpsertItem records an item. Callers hand in the already album-collapsed
// form; the store never re-derives identity.
func (s *Store) UpsertItem(ctx context.Context, it types.Item) error {
	st, err := s.stmt(ctx, upsertItemSQL)
	if err != nil {
		return wrapDBError("upsert item", err)
	}
	_, err = st.ExecContext(ctx,
		it.ItemID, string(it.ItemType), it.ItemTitle, it.ItemURL,
		it.BandID, it.BandName, it.Token, it.AlsoCollectedCount)
	return wrapDBErrorf(err, "upsert item %d", it.ItemID)
}

const getItemSQL = `
SELECT item_id, item_type, item_title, item_url, band_id, band_name, token,
       also_collected_count, last_updated
FROM item WHERE item_id = ?`

// GetItem loads one item row. Returns storage.ErrNotFound for unknown ids.
func (s *Store) GetItem(ctx context.Context, itemID int64) (types.Item, error) {
	st, err := s.stmt(ctx, getItemSQL)
	if err != nil {
		return types.Item{}, wrapDBError("get item", err)
	}

	var it types.Item
	var itemType string
	var token sql.NullString
	err = st.QueryRowContext(ctx, itemID).Scan(
		&it.ItemID, &itemType, &it.ItemTitle, &it.ItemURL,
		&it.BandID, &it.BandName, &token, &it.AlsoCollectedCount, &it.LastUpdated)
	if err != nil {
		return types.Item{}, wrapDBErrorf(err, "get item %d", itemID)
	}
	it.ItemType = types.ItemType(itemType)
	if token.Valid {
		it.Token = &token.String
	}
	return it, nil
}

const itemFreshSQL = `
SELECT unixepoch('now') - last_updated < ? FROM item WHERE item_id = ?`

// ItemFresh reports whether the item's collectors were crawled inside the
// freshness window. An item with no row reads as not fresh.
func (s *Store) ItemFresh(ctx context.Context, itemID int64) (bool, error) {
	st, err := s.stmt(ctx, itemFreshSQL)
	if err != nil {
		return false, wrapDBError("item fresh", err)
	}
	var fresh bool
	err = st.QueryRowContext(ctx, freshnessSeconds, itemID).Scan(&fresh)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapDBErrorf(err, "item fresh %d", itemID)
	}
	return fresh, nil
}

const markItemDoneSQL = `
UPDATE item SET last_updated = unixepoch('now') WHERE item_id = ?`

// MarkItemDone stamps the item's collectors crawl as completed right now.
func (s *Store) MarkItemDone(ctx context.Context, itemID int64) error {
	st, err := s.stmt(ctx, markItemDoneSQL)
	if err != nil {
		return wrapDBError("mark item done", err)
	}
	_, err = st.ExecContext(ctx, itemID)
	return wrapDBErrorf(err, "mark item done %d", itemID)
}

const insertCollectedBySQL = `
INSERT OR IGNORE INTO collected_by (item_id, fan_id)
VALUES (?, ?)
RETURNING 1`

// InsertCollectedBy records an item -> fan edge.
// It returns true iff the edge was newly inserted.
func (s *Store) InsertCollectedBy(ctx context.Context, itemID, fanID int64) (bool, error) {
	st, err := s.stmt(ctx, insertCollectedBySQL)
	if err != nil {
		return false, wrapDBError("insert collected_by", err)
	}
	var one int
	err = st.QueryRowContext(ctx, itemID, fanID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapDBErrorf(err, "insert collected_by %d -> %d", itemID, fanID)
	}
	return true, nil
}

const removeCollectedByForSQL = `
DELETE FROM collected_by WHERE item_id = ?`

// RemoveCollectedByFor drops every collected_by edge of the item (rate-limit
// rollback, mirroring RemoveCollectsFor).
func (s *Store) RemoveCollectedByFor(ctx context.Context, itemID int64) error {
	st, err := s.stmt(ctx, removeCollectedByForSQL)
	if err != nil {
		return wrapDBError("remove collected_by", err)
	}
	_, err = st.ExecContext(ctx, itemID)
	return wrapDBErrorf(err, "remove collected_by for %d", itemID)
}
