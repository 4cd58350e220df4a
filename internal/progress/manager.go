// Package progress maintains crawl targets: the per-fan bookkeeping rows
// behind the status API.
//
// A target walks two stages. Stage 1 re-crawls the stale items the fan
// collects, stage 2 re-crawls the stale collectors sharing at least two
// items with the fan. The manager seeds the crawl queues when a stage
// starts and re-counts what is left on every sweep; when nothing stale
// remains the target row is deleted, which is what "done" means.
package progress

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/internal/types"
)

// Crawl-rate guesses behind the ETA fields, in seconds per queue entry.
const (
	secondsPerItem      = 2
	secondsPerCollector = 3
)

// Manager owns the target lifecycle. HTTP handlers call AddTarget on
// status polls; Run re-counts every open target once a second.
type Manager struct {
	store storage.Store
	tick  time.Duration
}

// NewManager returns a manager sweeping open targets every second.
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store, tick: time.Second}
}

// SetTick overrides the sweep interval. Used by tests.
func (m *Manager) SetTick(tick time.Duration) {
	m.tick = tick
}

// Run sweeps all open targets until ctx is cancelled, one pass before the
// first tick. It returns non-nil only on database failure; the supervisor
// restarts it in that case.
func (m *Manager) Run(ctx context.Context) error {
	log.WithField("interval", m.tick).Info("progress manager started")
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		if err := m.sweep(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Manager) sweep(ctx context.Context) error {
	fanIDs, err := m.store.AllTargetFanIDs(ctx)
	if err != nil {
		return err
	}
	for _, fanID := range fanIDs {
		if err := m.Refresh(ctx, fanID); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// AddTarget opens (or re-counts) the crawl target for a fan and reports
// its current state. Calling it repeatedly is how status polling works:
// each call re-seeds the current stage's queue entries, which INSERT OR
// IGNORE keeps idempotent, and returns the done sentinel once no target
// row remains.
func (m *Manager) AddTarget(ctx context.Context, fanID int64) (types.Target, error) {
	if err := m.refreshItemsStage(ctx, fanID, nil); err != nil {
		return types.Target{}, err
	}
	return m.Target(ctx, fanID)
}

// Target reads the fan's target row, substituting the done sentinel when
// no row exists.
func (m *Manager) Target(ctx context.Context, fanID int64) (types.Target, error) {
	t, err := m.store.GetTarget(ctx, fanID)
	if errors.Is(err, storage.ErrNotFound) {
		return types.DoneTarget(fanID), nil
	}
	return t, err
}

// Refresh re-counts one open target in its current stage. Counting is all
// it does: the queues were seeded when the stage started, so a shrinking
// requirement set shows up here as a shrinking count_left until the stage
// empties and the target advances (or the row is deleted).
func (m *Manager) Refresh(ctx context.Context, fanID int64) error {
	t, err := m.store.GetTarget(ctx, fanID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	switch t.Stage {
	case types.StageItems:
		return m.refreshItemsStage(ctx, fanID, &t.CountTotal)
	case types.StageCollectors:
		return m.refreshCollectorsStage(ctx, fanID, &t.CountTotal)
	}
	return nil
}

// refreshItemsStage re-counts the stale items the fan collects. A nil
// oldTotal means the stage is (re)starting: the requirement set is pushed
// onto the item queue and becomes the total. When nothing is left the
// target falls through to the collectors stage.
func (m *Manager) refreshItemsStage(ctx context.Context, fanID int64, oldTotal *int64) error {
	itemIDs, err := m.store.StaleItemsOf(ctx, fanID)
	if err != nil {
		return err
	}
	if len(itemIDs) == 0 {
		return m.refreshCollectorsStage(ctx, fanID, nil)
	}
	left := int64(len(itemIDs))
	if err := m.store.UpsertTarget(ctx, types.Target{
		FanID:      fanID,
		Stage:      types.StageItems,
		CountLeft:  left,
		CountTotal: totalOr(oldTotal, left),
		ETA:        left * secondsPerItem,
	}); err != nil {
		return err
	}
	if oldTotal != nil {
		return nil
	}
	for _, itemID := range itemIDs {
		if err := m.store.EnqueueItem(ctx, itemID); err != nil {
			return err
		}
	}
	return nil
}

// refreshCollectorsStage re-counts the stale collectors sharing at least
// two items with the fan. When nothing is left the target row is deleted;
// absence is the done state.
func (m *Manager) refreshCollectorsStage(ctx context.Context, fanID int64, oldTotal *int64) error {
	fanIDs, err := m.store.StaleCollectorsSharing(ctx, fanID)
	if err != nil {
		return err
	}
	if len(fanIDs) == 0 {
		return m.store.DeleteTarget(ctx, fanID)
	}
	left := int64(len(fanIDs))
	if err := m.store.UpsertTarget(ctx, types.Target{
		FanID:      fanID,
		Stage:      types.StageCollectors,
		CountLeft:  left,
		CountTotal: totalOr(oldTotal, left),
		ETA:        left * secondsPerCollector,
	}); err != nil {
		return err
	}
	if oldTotal != nil {
		return nil
	}
	for _, sharer := range fanIDs {
		if err := m.store.EnqueueCollector(ctx, sharer); err != nil {
			return err
		}
	}
	return nil
}

func totalOr(oldTotal *int64, fallback int64) int64 {
	if oldTotal != nil {
		return *oldTotal
	}
	return fallback
}
