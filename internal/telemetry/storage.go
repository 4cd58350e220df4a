package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/internal/types"
)

const storageScopeName = "github.com/fangraph/fangraph/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in fangraph.storage.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner      storage.Store
	tracer     trace.Tracer
	ops        metric.Int64Counter
	dur        metric.Float64Histogram
	errs       metric.Int64Counter
	graphGauge metric.Int64Gauge
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("fangraph.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("fangraph.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("fangraph.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	graphGauge, _ := m.Int64Gauge("fangraph.graph.size",
		metric.WithDescription("Current graph table sizes (snapshot from Stats)"),
	)
	return &InstrumentedStore{
		inner:      s,
		tracer:     Tracer(storageScopeName),
		ops:        ops,
		dur:        dur,
		errs:       errs,
		graphGauge: graphGauge,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func usernameAttr(username string) attribute.KeyValue {
	return attribute.String("fangraph.username", username)
}

func fanIDAttr(fanID int64) attribute.KeyValue {
	return attribute.Int64("fangraph.fan_id", fanID)
}

func itemIDAttr(itemID int64) attribute.KeyValue {
	return attribute.Int64("fangraph.item_id", itemID)
}

// ── Collectors ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) UpsertCollector(ctx context.Context, c types.Collector) error {
	attrs := []attribute.KeyValue{fanIDAttr(c.FanID)}
	ctx, span, t := s.op(ctx, "UpsertCollector", attrs...)
	err := s.inner.UpsertCollector(ctx, c)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) FanIDForUsername(ctx context.Context, username string) (int64, error) {
	attrs := []attribute.KeyValue{usernameAttr(username)}
	ctx, span, t := s.op(ctx, "FanIDForUsername", attrs...)
	v, err := s.inner.FanIDForUsername(ctx, username)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) CollectorFresh(ctx context.Context, username string) (bool, error) {
	attrs := []attribute.KeyValue{usernameAttr(username)}
	ctx, span, t := s.op(ctx, "CollectorFresh", attrs...)
	v, err := s.inner.CollectorFresh(ctx, username)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) MarkCollectorDone(ctx context.Context, username string) error {
	attrs := []attribute.KeyValue{usernameAttr(username)}
	ctx, span, t := s.op(ctx, "MarkCollectorDone", attrs...)
	err := s.inner.MarkCollectorDone(ctx, username)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) InsertCollects(ctx context.Context, fanID, itemID int64) (bool, error) {
	attrs := []attribute.KeyValue{fanIDAttr(fanID), itemIDAttr(itemID)}
	ctx, span, t := s.op(ctx, "InsertCollects", attrs...)
	v, err := s.inner.InsertCollects(ctx, fanID, itemID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) RemoveCollectsFor(ctx context.Context, username string) error {
	attrs := []attribute.KeyValue{usernameAttr(username)}
	ctx, span, t := s.op(ctx, "RemoveCollectsFor", attrs...)
	err := s.inner.RemoveCollectsFor(ctx, username)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) CollectionSize(ctx context.Context, username string) (int64, error) {
	attrs := []attribute.KeyValue{usernameAttr(username)}
	ctx, span, t := s.op(ctx, "CollectionSize", attrs...)
	v, err := s.inner.CollectionSize(ctx, username)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Items ────────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) UpsertItem(ctx context.Context, it types.Item) error {
	attrs := []attribute.KeyValue{itemIDAttr(it.ItemID)}
	ctx, span, t := s.op(ctx, "UpsertItem", attrs...)
	err := s.inner.UpsertItem(ctx, it)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetItem(ctx context.Context, itemID int64) (types.Item, error) {
	attrs := []attribute.KeyValue{itemIDAttr(itemID)}
	ctx, span, t := s.op(ctx, "GetItem", attrs...)
	v, err := s.inner.GetItem(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ItemFresh(ctx context.Context, itemID int64) (bool, error) {
	attrs := []attribute.KeyValue{itemIDAttr(itemID)}
	ctx, span, t := s.op(ctx, "ItemFresh", attrs...)
	v, err := s.inner.ItemFresh(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) MarkItemDone(ctx context.Context, itemID int64) error {
	attrs := []attribute.KeyValue{itemIDAttr(itemID)}
	ctx, span, t := s.op(ctx, "MarkItemDone", attrs...)
	err := s.inner.MarkItemDone(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) InsertCollectedBy(ctx context.Context, itemID, fanID int64) (bool, error) {
	attrs := []attribute.KeyValue{itemIDAttr(itemID), fanIDAttr(fanID)}
	ctx, span, t := s.op(ctx, "InsertCollectedBy", attrs...)
	v, err := s.inner.InsertCollectedBy(ctx, itemID, fanID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) RemoveCollectedByFor(ctx context.Context, itemID int64) error {
	attrs := []attribute.KeyValue{itemIDAttr(itemID)}
	ctx, span, t := s.op(ctx, "RemoveCollectedByFor", attrs...)
	err := s.inner.RemoveCollectedByFor(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Work queues ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) EnqueueCollector(ctx context.Context, fanID int64) error {
	attrs := []attribute.KeyValue{fanIDAttr(fanID)}
	ctx, span, t := s.op(ctx, "EnqueueCollector", attrs...)
	err := s.inner.EnqueueCollector(ctx, fanID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) NextQueuedCollector(ctx context.Context) (string, error) {
	ctx, span, t := s.op(ctx, "NextQueuedCollector")
	v, err := s.inner.NextQueuedCollector(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) NextStaleCollector(ctx context.Context) (string, error) {
	ctx, span, t := s.op(ctx, "NextStaleCollector")
	v, err := s.inner.NextStaleCollector(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) RemoveCollectorFromQueue(ctx context.Context, username string) error {
	attrs := []attribute.KeyValue{usernameAttr(username)}
	ctx, span, t := s.op(ctx, "RemoveCollectorFromQueue", attrs...)
	err := s.inner.RemoveCollectorFromQueue(ctx, username)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) EnqueueItem(ctx context.Context, itemID int64) error {
	attrs := []attribute.KeyValue{itemIDAttr(itemID)}
	ctx, span, t := s.op(ctx, "EnqueueItem", attrs...)
	err := s.inner.EnqueueItem(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) NextQueuedItem(ctx context.Context) (int64, error) {
	ctx, span, t := s.op(ctx, "NextQueuedItem")
	v, err := s.inner.NextQueuedItem(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) NextStaleItem(ctx context.Context) (int64, error) {
	ctx, span, t := s.op(ctx, "NextStaleItem")
	v, err := s.inner.NextStaleItem(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) RemoveItemFromQueue(ctx context.Context, itemID int64) error {
	attrs := []attribute.KeyValue{itemIDAttr(itemID)}
	ctx, span, t := s.op(ctx, "RemoveItemFromQueue", attrs...)
	err := s.inner.RemoveItemFromQueue(ctx, itemID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Crawl targets ────────────────────────────────────────────────────────────

func (s *InstrumentedStore) UpsertTarget(ctx context.Context, t types.Target) error {
	attrs := []attribute.KeyValue{
		fanIDAttr(t.FanID),
		attribute.String("fangraph.stage", t.Stage.String()),
	}
	ctx, span, t0 := s.op(ctx, "UpsertTarget", attrs...)
	err := s.inner.UpsertTarget(ctx, t)
	s.done(ctx, span, t0, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetTarget(ctx context.Context, fanID int64) (types.Target, error) {
	attrs := []attribute.KeyValue{fanIDAttr(fanID)}
	ctx, span, t := s.op(ctx, "GetTarget", attrs...)
	v, err := s.inner.GetTarget(ctx, fanID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) DeleteTarget(ctx context.Context, fanID int64) error {
	attrs := []attribute.KeyValue{fanIDAttr(fanID)}
	ctx, span, t := s.op(ctx, "DeleteTarget", attrs...)
	err := s.inner.DeleteTarget(ctx, fanID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) AllTargetFanIDs(ctx context.Context) ([]int64, error) {
	ctx, span, t := s.op(ctx, "AllTargetFanIDs")
	v, err := s.inner.AllTargetFanIDs(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Stage requirement sets and recommendation input ──────────────────────────

func (s *InstrumentedStore) StaleItemsOf(ctx context.Context, fanID int64) ([]int64, error) {
	attrs := []attribute.KeyValue{fanIDAttr(fanID)}
	ctx, span, t := s.op(ctx, "StaleItemsOf", attrs...)
	v, err := s.inner.StaleItemsOf(ctx, fanID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) StaleCollectorsSharing(ctx context.Context, fanID int64) ([]int64, error) {
	attrs := []attribute.KeyValue{fanIDAttr(fanID)}
	ctx, span, t := s.op(ctx, "StaleCollectorsSharing", attrs...)
	v, err := s.inner.StaleCollectorsSharing(ctx, fanID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) RelevantUsersWithItems(ctx context.Context, username string) (map[int64][]int64, error) {
	attrs := []attribute.KeyValue{usernameAttr(username)}
	ctx, span, t := s.op(ctx, "RelevantUsersWithItems", attrs...)
	v, err := s.inner.RelevantUsersWithItems(ctx, username)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Statistics ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Stats(ctx context.Context) (storage.Stats, error) {
	ctx, span, t := s.op(ctx, "Stats")
	v, err := s.inner.Stats(ctx)
	s.done(ctx, span, t, err)
	if err == nil {
		// Record table sizes as gauge snapshots, broken down by table.
		tableAttr := func(table string) metric.MeasurementOption {
			return metric.WithAttributes(attribute.String("table", table))
		}
		s.graphGauge.Record(ctx, v.Collectors, tableAttr("collector"))
		s.graphGauge.Record(ctx, v.Items, tableAttr("item"))
		s.graphGauge.Record(ctx, v.CollectsEdges, tableAttr("collects"))
		s.graphGauge.Record(ctx, v.CollectedByEdges, tableAttr("collected_by"))
		s.graphGauge.Record(ctx, v.QueuedCollectors, tableAttr("collector_collection_queue"))
		s.graphGauge.Record(ctx, v.QueuedItems, tableAttr("item_collected_by_queue"))
		s.graphGauge.Record(ctx, v.OpenTargets, tableAttr("target"))
	}
	return v, err
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
