package sqlite

import "context"

// Both queues are INSERT OR IGNORE sets: enqueueing twice is a no-op, and
// a row survives until its crawl reaches a terminal outcome. Workers peek
// the lowest id each tick and dequeue explicitly.

const enqueueCollectorSQL = `
INSERT OR IGNORE INTO collector_collection_queue (fan_id) VALUES (?)`

// EnqueueCollector queues a fan's collection for crawling.
func (s *Store) EnqueueCollector(ctx context.Context, fanID int64) error {
	st, err := s.stmt(ctx, enqueueCollectorSQL)
	if err != nil {
		return wrapDBError("enqueue collector", err)
	}
	_, err = st.ExecContext(ctx, fanID)
	return wrapDBErrorf(err, "enqueue collector %d", fanID)
}

const nextQueuedCollectorSQL = `
SELECT username FROM collector_collection_queue
JOIN collector USING (fan_id)
ORDER BY fan_id ASC
LIMIT 1`

// NextQueuedCollector peeks the queued collector with the lowest fan id.
// Returns storage.ErrNotFound when the queue is empty.
func (s *Store) NextQueuedCollector(ctx context.Context) (string, error) {
	st, err := s.stmt(ctx, nextQueuedCollectorSQL)
	if err != nil {
		return "", wrapDBError("next queued collector", err)
	}
	var username string
	if err := st.QueryRowContext(ctx).Scan(&username); err != nil {
		return "", wrapDBError("next queued collector", err)
	}
	return username, nil
}

const nextStaleCollectorSQL = `
SELECT username FROM collector
WHERE unixepoch('now') - last_updated >= ?
ORDER BY fan_id ASC
LIMIT 1`

// NextStaleCollector picks the stale collector with the lowest fan id,
// backing the --crawl sweep when the queue runs dry.
func (s *Store) NextStaleCollector(ctx context.Context) (string, error) {
	st, err := s.stmt(ctx, nextStaleCollectorSQL)
	if err != nil {
		return "", wrapDBError("next stale collector", err)
	}
	var username string
	if err := st.QueryRowContext(ctx, freshnessSeconds).Scan(&username); err != nil {
		return "", wrapDBError("next stale collector", err)
	}
	return username, nil
}

const removeCollectorFromQueueSQL = `
DELETE FROM collector_collection_queue WHERE fan_id = (
    SELECT fan_id FROM collector WHERE username = ?
)`

// RemoveCollectorFromQueue dequeues the fan once their crawl finished.
func (s *Store) RemoveCollectorFromQueue(ctx context.Context, username string) error {
	st, err := s.stmt(ctx, removeCollectorFromQueueSQL)
	if err != nil {
		return wrapDBError("remove collector from queue", err)
	}
	_, err = st.ExecContext(ctx, username)
	return wrapDBErrorf(err, "remove collector from queue %q", username)
}

const enqueueItemSQL = `
INSERT OR IGNORE INTO item_collected_by_queue (item_id) VALUES (?)`

// EnqueueItem queues an item's collectors page for crawling.
func (s *Store) EnqueueItem(ctx context.Context, itemID int64) error {
	st, err := s.stmt(ctx, enqueueItemSQL)
	if err != nil {
		return wrapDBError("enqueue item", err)
	}
	_, err = st.ExecContext(ctx, itemID)
	return wrapDBErrorf(err, "enqueue item %d", itemID)
}

const nextQueuedItemSQL = `
SELECT item_id FROM item_collected_by_queue
ORDER BY item_id ASC
LIMIT 1`

// NextQueuedItem peeks the queued item with the lowest id.
// Returns storage.ErrNotFound when the queue is empty.
func (s *Store) NextQueuedItem(ctx context.Context) (int64, error) {
	st, err := s.stmt(ctx, nextQueuedItemSQL)
	if err != nil {
		return 0, wrapDBError("next queued item", err)
	}
	var itemID int64
	if err := st.QueryRowContext(ctx).Scan(&itemID); err != nil {
		return 0, wrapDBError("next queued item", err)
	}
	return itemID, nil
}

const nextStaleItemSQL = `
SELECT item_id FROM item
WHERE unixepoch('now') - last_updated >= ?
ORDER BY item_id ASC
LIMIT 1`

// NextStaleItem picks the stale item with the lowest id (--crawl sweep).
func (s *Store) NextStaleItem(ctx context.Context) (int64, error) {
	st, err := s.stmt(ctx, nextStaleItemSQL)
	if err != nil {
		return 0, wrapDBError("next stale item", err)
	}
	var itemID int64
	if err := st.QueryRowContext(ctx, freshnessSeconds).Scan(&itemID); err != nil {
		return 0, wrapDBError("next stale item", err)
	}
	return itemID, nil
}

const removeItemFromQueueSQL = `
DELETE FROM item_collected_by_queue WHERE item_id = ?`

// RemoveItemFromQueue dequeues the item once its crawl finished.
func (s *Store) RemoveItemFromQueue(ctx context.Context, itemID int64) error {
	st, err := s.stmt(ctx, removeItemFromQueueSQL)
	if err != nil {
		return wrapDBError("remove item from queue", err)
	}
	_, err = st.ExecContext(ctx, itemID)
	return wrapDBErrorf(err, "remove item from queue %d", itemID)
}
