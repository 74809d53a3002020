package syncrun

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type sqlRunCoordinatorMetrics struct {
	runCreationDuration prometheus.Histogram
	runLookupDuration   prometheus.Histogram
	runCreationRaces    prometheus.Counter
	runsClosed          *prometheus.CounterVec
}

var metrics *sqlRunCoordinatorMetrics

func init() {
	metrics = new(sqlRunCoordinatorMetrics)

	metrics.runCreationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "billing_sync_sql_run_creation_duration",
		Help: "The amount of time it took to create a sync run row in the db",
	})

	metrics.runLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "billing_sync_sql_run_lookup_duration",
		Help: "The amount of time it took to look up the active sync run in the db",
	})

	metrics.runCreationRaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sync_sql_run_creation_races",
		Help: "The number of run creations lost to a concurrent caller",
	})

	metrics.runsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_sync_sql_runs_closed",
		Help: "The number of sync runs closed, by terminal status",
	}, []string{"status"})
}
