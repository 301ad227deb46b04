// Package metrics exposes Prometheus collectors for sync runs and provider traffic.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podfinder_catalog_requests_total",
			Help: "Catalog HTTP requests by endpoint and response code",
		},
		[]string{"endpoint", "code"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podfinder_rate_limited_total",
			Help: "Catalog responses with HTTP 429 that were retried",
		},
		[]string{"endpoint"},
	)

	TokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "podfinder_token_refreshes_total",
			Help: "Bearer token exchanges against the token endpoint",
		},
	)

	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podfinder_runs_total",
			Help: "Sync runs by result",
		},
		[]string{"result"}, // "ok", "auth_error", "api_error", "busy", "error"
	)

	RunEpisodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podfinder_run_episodes_total",
			Help: "Episodes seen by sync runs by outcome",
		},
		[]string{"outcome"}, // "new", "processed", "skipped"
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "podfinder_run_duration_seconds",
			Help:    "Wall time of sync runs including provider requests",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

// ObserveRequest records one catalog response. A zero code means transport failure.
func ObserveRequest(endpoint string, code int) {
	label := "error"
	if code != 0 {
		label = strconv.Itoa(code)
	}
	CatalogRequests.WithLabelValues(endpoint, label).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
