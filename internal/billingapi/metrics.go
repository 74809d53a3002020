package billingapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_sync_api_retries",
		Help: "The number of retried billing api calls",
	}, []string{"operation", "kind"})

	retriesExhaustedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_sync_api_retries_exhausted",
		Help: "The number of billing api calls that failed after exhausting the retry budget",
	}, []string{"operation", "kind"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "billing_sync_api_request_duration",
		Help: "The amount of time it took to complete a billing api call",
	})
)
