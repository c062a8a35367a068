// Package metrics exposes Prometheus counters for uploads, tariff fetches and
// exports. Init must run before the recorders have any effect.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "tariff_dashboard_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultEmpty   = "empty"
)

var (
	registerOnce sync.Once

	profileUploads *prometheus.CounterVec
	profileRows    *prometheus.CounterVec

	tariffFetchTotal   *prometheus.CounterVec
	tariffFetchLatency *prometheus.HistogramVec
	tariffCache        *prometheus.CounterVec

	exportTotal *prometheus.CounterVec

	wsClients prometheus.Gauge
	wsDropped *prometheus.CounterVec
)

// Init registers the metrics with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		profileUploads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "profile_uploads_total",
				Help: "Total load profile uploads by result",
			},
			[]string{"result"},
		)
		profileRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "profile_rows_total",
				Help: "Load profile rows by outcome",
			},
			[]string{"outcome"},
		)
		tariffFetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tariff_fetch_total",
				Help: "Total tariff API fetches by result",
			},
			[]string{"result"},
		)
		tariffFetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tariff_fetch_latency_seconds",
				Help:    "Tariff API fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		tariffCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tariff_cache_total",
				Help: "Tariff cache lookups by outcome",
			},
			[]string{"outcome"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Comparison exports by format and result",
			},
			[]string{"format", "result"},
		)

		wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "ws_clients",
			Help: "Connected dashboard WebSocket clients",
		})
		wsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ws_dropped_messages_total",
				Help: "Dashboard messages dropped for slow WebSocket clients by message type",
			},
			[]string{"type"},
		)

		prometheus.MustRegister(
			wsClients,
			wsDropped,
			profileUploads,
			profileRows,
			tariffFetchTotal,
			tariffFetchLatency,
			tariffCache,
			exportTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProfileUpload records one upload attempt and its row counts.
func ObserveProfileUpload(result string, rows, skipped int) {
	if result == "" {
		result = ResultSuccess
	}
	if profileUploads != nil {
		profileUploads.WithLabelValues(result).Inc()
	}
	if profileRows != nil {
		profileRows.WithLabelValues("ingested").Add(float64(rows))
		profileRows.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// ObserveTariffFetch records one upstream fetch and its duration.
func ObserveTariffFetch(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if tariffFetchTotal != nil {
		tariffFetchTotal.WithLabelValues(result).Inc()
	}
	if tariffFetchLatency != nil {
		tariffFetchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records one report export.
func ObserveExport(format, result string) {
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// SetWSClients records the number of connected WebSocket clients.
func SetWSClients(n int) {
	if wsClients != nil {
		wsClients.Set(float64(n))
	}
}

// ObserveWSDrop records one message of msgType dropped for a slow client.
func ObserveWSDrop(msgType string) {
	if wsDropped != nil {
		wsDropped.WithLabelValues(msgType).Inc()
	}
}

// CacheObserver feeds tariff cache lookups into the cache counter.
type CacheObserver struct{}

func (CacheObserver) CacheHit() {
	if tariffCache != nil {
		tariffCache.WithLabelValues("hit").Inc()
	}
}

func (CacheObserver) CacheMiss() {
	if tariffCache != nil {
		tariffCache.WithLabelValues("miss").Inc()
	}
}
