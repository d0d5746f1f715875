package metrics

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "citysense_"

	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	eventsPublished  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	subscriberCount  prometheus.Gauge
	tenantShardCount prometheus.Gauge
	replayRequests   prometheus.Counter

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec
)

// Init registers observability metrics. Safe to call more than once.
func Init(logger *log.Logger) {
	registerOnce.Do(func() {
		if logger == nil {
			logger = log.Default()
		}

		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by protocol and result",
			},
			[]string{"protocol", "result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by failure class",
			},
			[]string{"class"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"protocol", "result"},
		)

		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "distributor_events_published_total",
				Help: "Total distribution events published by type",
			},
			[]string{"type"},
		)
		eventsDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "distributor_events_dropped_total",
				Help: "Total events dropped for slow subscribers",
			},
		)
		subscriberCount = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "distributor_subscribers",
				Help: "Currently attached stream subscribers",
			},
		)
		tenantShardCount = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "distributor_tenant_channels",
				Help: "Live tenant channels with a replay buffer",
			},
		)
		replayRequests = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "distributor_replay_requests_total",
				Help: "Total replay buffer reads",
			},
		)

		cacheHits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dashboard_cache_hits_total",
				Help: "Dashboard cache hits by query",
			},
			[]string{"query"},
		)
		cacheMisses = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dashboard_cache_misses_total",
				Help: "Dashboard cache misses by query",
			},
			[]string{"query"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report export operations by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			eventsPublished,
			eventsDropped,
			subscriberCount,
			tenantShardCount,
			replayRequests,
			cacheHits,
			cacheMisses,
			reportExportTotal,
			reportExportLatency,
		)
	})
}

// ObserveIngest records one ingest request.
func ObserveIngest(protocol, result string, duration time.Duration) {
	if protocol == "" {
		protocol = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(protocol, result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(protocol, result).Observe(duration.Seconds())
	}
}

// IncIngestError increments the ingest error counter.
func IncIngestError(class string) {
	if class == "" {
		class = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(class).Inc()
	}
}

// IncEventPublished increments the published event counter.
func IncEventPublished(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(eventType).Inc()
	}
}

// IncEventDropped increments the slow-subscriber drop counter.
func IncEventDropped() {
	if eventsDropped != nil {
		eventsDropped.Inc()
	}
}

// AddSubscribers moves the subscriber gauge by delta.
func AddSubscribers(delta int) {
	if subscriberCount != nil {
		subscriberCount.Add(float64(delta))
	}
}

// SetTenantChannels sets the live tenant channel gauge.
func SetTenantChannels(count int) {
	if tenantShardCount != nil {
		tenantShardCount.Set(float64(count))
	}
}

// IncReplayRequest increments the replay read counter.
func IncReplayRequest() {
	if replayRequests != nil {
		replayRequests.Inc()
	}
}

// IncCacheHit increments the cache hit counter for a query kind.
func IncCacheHit(query string) {
	if query == "" {
		query = "unknown"
	}
	if cacheHits != nil {
		cacheHits.WithLabelValues(query).Inc()
	}
}

// IncCacheMiss increments the cache miss counter for a query kind.
func IncCacheMiss(query string) {
	if query == "" {
		query = "unknown"
	}
	if cacheMisses != nil {
		cacheMisses.WithLabelValues(query).Inc()
	}
}

// ObserveReportExport records one export operation.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultRejected = resultRejected
	ResultError    = resultError
)
