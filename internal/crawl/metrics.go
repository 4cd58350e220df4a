package crawl

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fangraph/fangraph/internal/telemetry"
)

// Values for the fangraph.crawl.kind metric attribute.
const (
	kindCollection = "collection"
	kindItem       = "item"
)

// Values for the fangraph.crawl.outcome metric attribute.
const (
	outcomeDone        = "done"
	outcomeNotFound    = "not_found"
	outcomeRateLimited = "rate_limited"
	outcomeError       = "error"
)

// crawlMetrics holds lazily-initialized OTel instruments for the workers.
var crawlMetrics struct {
	pages    metric.Int64Counter
	edges    metric.Int64Counter
	outcomes metric.Int64Counter
}

var crawlMetricsOnce sync.Once

func initCrawlMetrics() {
	m := telemetry.Meter("github.com/fangraph/fangraph/crawl")
	crawlMetrics.pages, _ = m.Int64Counter("fangraph.crawl.pages",
		metric.WithDescription("Remote pages fetched and stored"),
		metric.WithUnit("{page}"),
	)
	crawlMetrics.edges, _ = m.Int64Counter("fangraph.crawl.edges",
		metric.WithDescription("New graph edges inserted"),
		metric.WithUnit("{edge}"),
	)
	crawlMetrics.outcomes, _ = m.Int64Counter("fangraph.crawl.outcomes",
		metric.WithDescription("Queue entries processed, by outcome"),
		metric.WithUnit("{entry}"),
	)
}

func recordPage(ctx context.Context, kind string, newEdges int64) {
	crawlMetricsOnce.Do(initCrawlMetrics)
	kindAttr := metric.WithAttributes(attribute.String("fangraph.crawl.kind", kind))
	if crawlMetrics.pages != nil {
		crawlMetrics.pages.Add(ctx, 1, kindAttr)
	}
	if crawlMetrics.edges != nil && newEdges > 0 {
		crawlMetrics.edges.Add(ctx, newEdges, kindAttr)
	}
}

func recordOutcome(ctx context.Context, kind, outcome string) {
	crawlMetricsOnce.Do(initCrawlMetrics)
	if crawlMetrics.outcomes == nil {
		return
	}
	crawlMetrics.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("fangraph.crawl.kind", kind),
		attribute.String("fangraph.crawl.outcome", outcome),
	))
}
