package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fangraph/fangraph/internal/types"
)

// The conflict clause has no target on purpose: a row can collide on either
// fan_id or username, and both cases should fall through to the token fill.
// A token is written once and never overwritten, so the first pagination
// token observed for a fan stays authoritative.
const upsertCollectorSQL = `
INSERT INTO collector (fan_id, username, name, token, last_updated)
VALUES (?, ?, ?, ?, 0)
ON CONFLICT DO UPDATE SET
    token = CASE WHEN token IS NULL THEN excluded.token ELSE token END`

// UpsertCollector records a fan, preserving last_updated and any existing
// token on conflict.
func (s *Store) UpsertCollector(ctx context.Context, c types.Collector) error {
	st, err := s.stmt(ctx, upsertCollectorSQL)
	if err != nil {
		return wrapDBError("upsert collector", err)
	}
	_, err = st.ExecContext(ctx, c.FanID, c.Username, c.Name, c.Token)
	return wrapDBError("upsert collector", err)
}

const fanIDForUsernameSQL = `
SELECT fan_id FROM collector WHERE username = ?`

// FanIDForUsername resolves a username to its fan id.
// Returns storage.ErrNotFound for usernames never seen by the crawl.
func (s *Store) FanIDForUsername(ctx context.Context, username string) (int64, error) {
	st, err := s.stmt(ctx, fanIDForUsernameSQL)
	if err != nil {
		return 0, wrapDBError("get fan id", err)
	}
	var fanID int64
	if err := st.QueryRowContext(ctx, username).Scan(&fanID); err != nil {
		return 0, wrapDBErrorf(err, "get fan id for %q", username)
	}
	return fanID, nil
}

const collectorFreshSQL = `
SELECT unixepoch('now') - last_updated < ? FROM collector WHERE username = ?`

// CollectorFresh reports whether the fan was fully crawled inside the
// freshness window. A fan with no row reads as not fresh.
func (s *Store) CollectorFresh(ctx context.Context, username string) (bool, error) {
	st, err := s.stmt(ctx, collectorFreshSQL)
	if err != nil {
		return false, wrapDBError("collector fresh", err)
	}
	var fresh bool
	err = st.QueryRowContext(ctx, freshnessSeconds, username).Scan(&fresh)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapDBErrorf(err, "collector fresh %q", username)
	}
	return fresh, nil
}

const markCollectorDoneSQL = `
UPDATE collector SET last_updated = unixepoch('now') WHERE username = ?`

// MarkCollectorDone stamps the fan as fully crawled right now.
func (s *Store) MarkCollectorDone(ctx context.Context, username string) error {
	st, err := s.stmt(ctx, markCollectorDoneSQL)
	if err != nil {
		return wrapDBError("mark collector done", err)
	}
	_, err = st.ExecContext(ctx, username)
	return wrapDBErrorf(err, "mark collector done %q", username)
}

// RETURNING makes the insert report back: a row means the edge is new,
// no row means it was already present. The paginators stop once a whole
// page yields nothing new.
const insertCollectsSQL = `
INSERT OR IGNORE INTO collects (fan_id, item_id)
VALUES (?, ?)
RETURNING 1`

// InsertCollects records a fan -> item edge.
// It returns true iff the edge was newly inserted.
func (s *Store) InsertCollects(ctx context.Context, fanID, itemID int64) (bool, error) {
	st, err := s.stmt(ctx, insertCollectsSQL)
	if err != nil {
		return false, wrapDBError("insert collects", err)
	}
	var one int
	err = st.QueryRowContext(ctx, fanID, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapDBErrorf(err, "insert collects %d -> %d", fanID, itemID)
	}
	return true, nil
}

const removeCollectsForSQL = `
DELETE FROM collects WHERE fan_id = (
    SELECT fan_id FROM collector WHERE username = ?
)`

// RemoveCollectsFor drops every collects edge of the fan. The workers call
// this after a rate limit so a partially stored page can't later masquerade
// as already-crawled data and cut the pagination short.
func (s *Store) RemoveCollectsFor(ctx context.Context, username string) error {
	st, err := s.stmt(ctx, removeCollectsForSQL)
	if err != nil {
		return wrapDBError("remove collects", err)
	}
	_, err = st.ExecContext(ctx, username)
	return wrapDBErrorf(err, "remove collects for %q", username)
}

const collectionSizeSQL = `
SELECT COUNT(*) FROM collector
JOIN collects USING (fan_id)
WHERE username = ?`

// CollectionSize returns the number of stored collection edges for the fan.
// Unknown usernames count as zero.
func (s *Store) CollectionSize(ctx context.Context, username string) (int64, error) {
	st, err := s.stmt(ctx, collectionSizeSQL)
	if err != nil {
		return 0, wrapDBError("collection size", err)
	}
	var n int64
	if err := st.QueryRowContext(ctx, username).Scan(&n); err != nil {
		return 0, wrapDBErrorf(err, "collection size %q", username)
	}
	return n, nil
}
