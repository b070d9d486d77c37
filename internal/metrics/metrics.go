package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcad_scrape_jobs_total",
		Help: "Scrape job attempts by outcome (completed, retried, failed).",
	}, []string{"outcome"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tcad_scrape_job_duration_seconds",
		Help:    "Wall-clock duration of scrape job attempts.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	propertiesUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcad_properties_upserted_total",
		Help: "Properties written by the upsert path, split by insert vs update.",
	}, []string{"op"})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcad_token_refreshes_total",
		Help: "Token refresh attempts by result.",
	}, []string{"result"})

	translatorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcad_translator_requests_total",
		Help: "NL query translations by path (llm or fallback).",
	}, []string{"path"})

	enqueueRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcad_enqueue_rejected_total",
		Help: "Enqueue attempts refused by the rate/dedup gate.",
	})

	pageSizeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcad_page_size_fallbacks_total",
		Help: "Times the client abandoned a page size and fell to a smaller one.",
	})
)

// RecordJob counts one job attempt outcome and its duration.
func RecordJob(outcome string, seconds float64) {
	jobsTotal.WithLabelValues(outcome).Inc()
	jobDuration.Observe(seconds)
}

// RecordUpsert counts inserted and updated rows from one batch.
func RecordUpsert(inserted, updated int) {
	if inserted > 0 {
		propertiesUpserted.WithLabelValues("insert").Add(float64(inserted))
	}
	if updated > 0 {
		propertiesUpserted.WithLabelValues("update").Add(float64(updated))
	}
}

// RecordTokenRefresh counts one refresh attempt.
func RecordTokenRefresh(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	tokenRefreshes.WithLabelValues(result).Inc()
}

// RecordTranslation counts one translator call.
func RecordTranslation(fallback bool) {
	path := "llm"
	if fallback {
		path = "fallback"
	}
	translatorRequests.WithLabelValues(path).Inc()
}

// RecordEnqueueRejected counts a gate refusal.
func RecordEnqueueRejected() {
	enqueueRejected.Inc()
}

// RecordPageSizeFallback counts one ladder step down.
func RecordPageSizeFallback() {
	pageSizeFallbacks.Inc()
}

// Handler exposes the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
