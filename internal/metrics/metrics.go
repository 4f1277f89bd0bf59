// Package metrics holds the Prometheus collectors geostore updates.
//
// The CLI is short-lived, so nothing is scraped: when asked, it writes the
// default registry to a node-exporter textfile on exit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SavesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geostore_saves_total",
		Help: "Total number of geometries saved",
	})
	SaveErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geostore_save_errors_total",
		Help: "Total number of failed saves by error code",
	}, []string{"code"})
	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geostore_lookups_total",
		Help: "Total number of record lookups by result",
	}, []string{"result"})
	BBoxBackfillsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geostore_bbox_backfills_total",
		Help: "Total number of bounding boxes computed on first read",
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geostore_cache_hits_total",
		Help: "Total redis cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geostore_cache_misses_total",
		Help: "Total redis cache misses",
	})
	FeatureServRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geostore_featureserv_requests_total",
		Help: "Total feature server requests by outcome",
	}, []string{"outcome"})
	FeatureServDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geostore_featureserv_duration_ms",
		Help:    "Feature server request duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
)

func init() {
	prometheus.MustRegister(SavesTotal)
	prometheus.MustRegister(SaveErrorsTotal)
	prometheus.MustRegister(LookupsTotal)
	prometheus.MustRegister(BBoxBackfillsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(FeatureServRequestsTotal)
	prometheus.MustRegister(FeatureServDurationMs)
}

// WriteTextfile writes every registered metric to path in the text
// exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
