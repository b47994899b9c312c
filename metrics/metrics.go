package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsTotal counts detail rows by outcome: scraped, overlay_missing, failed.
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pesticrawl_rows_total",
			Help: "Result rows attempted, by outcome.",
		},
		[]string{"outcome"},
	)

	// PagesTotal counts result pages fully scanned.
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pesticrawl_pages_total",
			Help: "Result pages scanned.",
		},
		[]string{"strategy"},
	)

	// CrawlsTotal counts finished crawls by the state that ended them.
	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pesticrawl_crawls_total",
			Help: "Finished crawls, by terminal state.",
		},
		[]string{"strategy", "terminal"},
	)

	CrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pesticrawl_crawl_duration_seconds",
			Help:    "Duration of whole crawls.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"strategy"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pesticrawl_active_sessions",
			Help: "Browser sessions currently owned by a crawl.",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pesticrawl_http_requests_total",
			Help: "Total number of API requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pesticrawl_http_request_duration_seconds",
			Help:    "Duration of API requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
