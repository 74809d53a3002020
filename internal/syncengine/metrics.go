package syncengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	webhooksProcessed *prometheus.CounterVec
	entitiesUpserted  *prometheus.CounterVec
	pagesProcessed    prometheus.Counter
	upsertDuration    prometheus.Histogram
}

var metrics *engineMetrics

func init() {
	metrics = new(engineMetrics)

	metrics.webhooksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_sync_webhooks_processed",
		Help: "The number of webhook deliveries processed, by result",
	}, []string{"result"})

	metrics.entitiesUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_sync_entities_upserted",
		Help: "The number of entity rows written, by object type",
	}, []string{"object"})

	metrics.pagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sync_backfill_pages_processed",
		Help: "The number of backfill pages fetched and written",
	})

	metrics.upsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "billing_sync_upsert_duration",
		Help: "The amount of time it took to write one entity row",
	})
}
