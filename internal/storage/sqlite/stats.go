package sqlite

import (
	"context"

	"github.com/fangraph/fangraph/internal/storage"
)

const statsSQL = `
SELECT
    (SELECT COUNT(*) FROM collector),
    (SELECT COUNT(*) FROM item),
    (SELECT COUNT(*) FROM collects),
    (SELECT COUNT(*) FROM collected_by),
    (SELECT COUNT(*) FROM collector_collection_queue),
    (SELECT COUNT(*) FROM item_collected_by_queue),
    (SELECT COUNT(*) FROM collection_target)`

// Stats returns a snapshot of graph and queue sizes.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	st, err := s.stmt(ctx, statsSQL)
	if err != nil {
		return storage.Stats{}, wrapDBError("stats", err)
	}
	var out storage.Stats
	err = st.QueryRowContext(ctx).Scan(
		&out.Collectors,
		&out.Items,
		&out.CollectsEdges,
		&out.CollectedByEdges,
		&out.QueuedCollectors,
		&out.QueuedItems,
		&out.OpenTargets,
	)
	if err != nil {
		return storage.Stats{}, wrapDBError("stats", err)
	}
	return out, nil
}
