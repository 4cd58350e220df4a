package sqlite

import (
	"context"
	"strconv"
	"strings"

	"github.com/fangraph/fangraph/internal/types"
)

// count_total only ever grows: a stage can shrink its requirement set as
// workers drain it, but the total shown to the user keeps the high-water
// mark, including across the stage 1 -> 2 transition.
const upsertTargetSQL = `
INSERT INTO collection_target (fan_id, stage, count_left, count_total, eta)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT DO UPDATE SET
    stage = excluded.stage,
    count_left = excluded.count_left,
    count_total = CASE WHEN excluded.count_total > count_total THEN excluded.count_total ELSE count_total END,
    eta = excluded.eta`

// UpsertTarget writes the fan's crawl progress row.
func (s *Store) UpsertTarget(ctx context.Context, t types.Target) error {
	st, err := s.stmt(ctx, upsertTargetSQL)
	if err != nil {
		return wrapDBError("upsert target", err)
	}
	_, err = st.ExecContext(ctx, t.FanID, int64(t.Stage), t.CountLeft, t.CountTotal, t.ETA)
	return wrapDBErrorf(err, "upsert target %d", t.FanID)
}

const getTargetSQL = `
SELECT fan_id, stage, count_left, count_total, eta
FROM collection_target WHERE fan_id = ?`

// GetTarget loads the fan's target row. Returns storage.ErrNotFound when no
// row exists; the progress layer reads that as "done".
func (s *Store) GetTarget(ctx context.Context, fanID int64) (types.Target, error) {
	st, err := s.stmt(ctx, getTargetSQL)
	if err != nil {
		return types.Target{}, wrapDBError("get target", err)
	}
	var t types.Target
	var stage int64
	err = st.QueryRowContext(ctx, fanID).Scan(&t.FanID, &stage, &t.CountLeft, &t.CountTotal, &t.ETA)
	if err != nil {
		return types.Target{}, wrapDBErrorf(err, "get target %d", fanID)
	}
	t.Stage = types.TargetStage(stage)
	return t, nil
}

const deleteTargetSQL = `
DELETE FROM collection_target WHERE fan_id = ?`

// DeleteTarget removes the fan's target row. Deletion is the done state.
func (s *Store) DeleteTarget(ctx context.Context, fanID int64) error {
	st, err := s.stmt(ctx, deleteTargetSQL)
	if err != nil {
		return wrapDBError("delete target", err)
	}
	_, err = st.ExecContext(ctx, fanID)
	return wrapDBErrorf(err, "delete target %d", fanID)
}

const allTargetFanIDsSQL = `
SELECT fan_id FROM collection_target`

// AllTargetFanIDs lists every fan with an open target.
func (s *Store) AllTargetFanIDs(ctx context.Context) ([]int64, error) {
	st, err := s.stmt(ctx, allTargetFanIDsSQL)
	if err != nil {
		return nil, wrapDBError("all targets", err)
	}
	rows, err := st.QueryContext(ctx)
	if err != nil {
		return nil, wrapDBError("all targets", err)
	}
	defer rows.Close()

	var fanIDs []int64
	for rows.Next() {
		var fanID int64
		if err := rows.Scan(&fanID); err != nil {
			return nil, wrapDBError("all targets", err)
		}
		fanIDs = append(fanIDs, fanID)
	}
	return fanIDs, wrapDBError("all targets", rows.Err())
}

// Stage-1 requirement set: items the fan collects whose own collectors page
// is stale. Items with no row fall out via the NULL subquery result.
const staleItemsOfSQL = `
SELECT item_id FROM collects c
WHERE fan_id = ?
  AND (SELECT unixepoch('now') - last_updated >= ? FROM item i WHERE i.item_id = c.item_id)`

// StaleItemsOf returns the stage-1 requirement set for the fan.
func (s *Store) StaleItemsOf(ctx context.Context, fanID int64) ([]int64, error) {
	return s.queryIDs(ctx, "stale items", staleItemsOfSQL, fanID, freshnessSeconds)
}

// Stage-2 requirement set: stale collectors owning at least two of the
// fan's items. The fan can show up here too once their own row goes stale;
// that just schedules a re-crawl of their collection.
const staleCollectorsSharingSQL = `
SELECT fan_id FROM collected_by c
WHERE item_id IN (SELECT item_id FROM collects WHERE fan_id = ?)
  AND (SELECT unixepoch('now') - last_updated >= ? FROM collector co WHERE co.fan_id = c.fan_id)
GROUP BY fan_id
HAVING COUNT(fan_id) > 1`

// StaleCollectorsSharing returns the stage-2 requirement set for the fan.
func (s *Store) StaleCollectorsSharing(ctx context.Context, fanID int64) ([]int64, error) {
	return s.queryIDs(ctx, "stale collectors", staleCollectorsSharingSQL, fanID, freshnessSeconds)
}

func (s *Store) queryIDs(ctx context.Context, op, query string, args ...interface{}) ([]int64, error) {
	st, err := s.stmt(ctx, query)
	if err != nil {
		return nil, wrapDBError(op, err)
	}
	rows, err := st.QueryContext(ctx, args...)
	if err != nil {
		return nil, wrapDBError(op, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError(op, err)
		}
		ids = append(ids, id)
	}
	return ids, wrapDBError(op, rows.Err())
}

// Every fan owning at least two of the named fan's items, with the full
// item list each of them collects. The named fan trivially qualifies (they
// share their whole collection with themselves), which is exactly what the
// recommender wants: their row is the forbidden set.
const relevantUsersSQL = `
SELECT fan_id, group_concat(item_id) FROM collects
WHERE fan_id IN (
    SELECT fan_id FROM collects
    WHERE item_id IN (
        SELECT item_id FROM collects
        WHERE fan_id = (
            SELECT fan_id FROM collector WHERE username = ?
        )
    )
    GROUP BY fan_id
    HAVING COUNT(fan_id) > 1
)
GROUP BY fan_id`

// RelevantUsersWithItems returns, per fan sharing at least two items with
// the named fan, every item id that fan collects.
func (s *Store) RelevantUsersWithItems(ctx context.Context, username string) (map[int64][]int64, error) {
	st, err := s.stmt(ctx, relevantUsersSQL)
	if err != nil {
		return nil, wrapDBError("relevant users", err)
	}
	rows, err := st.QueryContext(ctx, username)
	if err != nil {
		return nil, wrapDBError("relevant users", err)
	}
	defer rows.Close()

	users := make(map[int64][]int64)
	for rows.Next() {
		var fanID int64
		var concat string
		if err := rows.Scan(&fanID, &concat); err != nil {
			return nil, wrapDBError("relevant users", err)
		}
		parts := strings.Split(concat, ",")
		items := make([]int64, 0, len(parts))
		for _, part := range parts {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, wrapDBErrorf(err, "relevant users: bad item id %q", part)
			}
			items = append(items, id)
		}
		users[fanID] = items
	}
	return users, wrapDBError("relevant users", rows.Err())
}
