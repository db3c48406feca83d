// Package metrics exposes Prometheus collectors for sync runs. Collectors
// are fed from progress events rather than from the syncer itself.
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fjlanasa/aspace-sync/api/v1/events"
	"github.com/fjlanasa/aspace-sync/watermark"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aspace_sync"

const (
	LabelKind     = "kind"
	LabelStatus   = "status"
	LabelPipeline = "pipeline"
	LabelType     = "type"
	LabelReason   = "reason"
)

type Metrics struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	pages           *prometheus.CounterVec
	records         *prometheus.CounterVec
	deletions       *prometheus.CounterVec
	skipped         *prometheus.CounterVec
	failedRecords   *prometheus.CounterVec
	updateWatermark prometheus.Gauge
	purgeWatermark  prometheus.Gauge
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync runs by kind and final status.",
		}, []string{LabelKind, LabelStatus}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of sync runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{LabelKind}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Remote pages processed by kind and status.",
		}, []string{LabelKind, LabelStatus}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records submitted to each pipeline by update runs.",
		}, []string{LabelPipeline}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletions_total",
			Help:      "Local entities removed by purge runs, by destination type.",
		}, []string{LabelType}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purge_skipped_total",
			Help:      "Tombstones skipped by purge runs.",
		}, []string{LabelReason}),
		failedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_records_total",
			Help:      "Records left behind because their payload could not be processed.",
		}, []string{LabelKind}),
		updateWatermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_watermark_timestamp_seconds",
			Help:      "Update watermark as a Unix timestamp.",
		}),
		purgeWatermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "purge_watermark_page",
			Help:      "Last delete-feed page purged.",
		}),
	}
	m.registry.MustRegister(
		m.runs,
		m.runDuration,
		m.pages,
		m.records,
		m.deletions,
		m.skipped,
		m.failedRecords,
		m.updateWatermark,
		m.purgeWatermark,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe updates the collectors from one progress event.
func (m *Metrics) Observe(event events.Event) {
	switch e := event.(type) {
	case *events.RunStarted:
		m.setWatermark(e.Kind, e.Watermark)
	case *events.PageCompleted:
		m.pages.WithLabelValues(e.Kind, "completed").Inc()
		for key, n := range e.Counts {
			if e.Kind == "purge" {
				m.deletions.WithLabelValues(key).Add(float64(n))
			} else {
				m.records.WithLabelValues(key).Add(float64(n))
			}
		}
		if e.Misses > 0 {
			m.skipped.WithLabelValues("never_synchronized").Add(float64(e.Misses))
		}
		if e.AlreadyDeleted > 0 {
			m.skipped.WithLabelValues("already_deleted").Add(float64(e.AlreadyDeleted))
		}
		if e.FailedRecords > 0 {
			m.failedRecords.WithLabelValues(e.Kind).Add(float64(e.FailedRecords))
		}
		m.setWatermark(e.Kind, e.Watermark)
	case *events.PageFailed:
		m.pages.WithLabelValues(e.Kind, "failed").Inc()
	case *events.RunFinished:
		m.runs.WithLabelValues(e.Kind, e.Status).Inc()
		m.runDuration.WithLabelValues(e.Kind).Observe(e.Duration.Seconds())
		m.setWatermark(e.Kind, e.Watermark)
	}
}

func (m *Metrics) setWatermark(kind, value string) {
	if value == "" {
		return
	}
	switch kind {
	case "update":
		t, err := watermark.ParseTimestamp(value)
		if err != nil {
			slog.Debug("metrics: unparseable update watermark", "watermark", value, "error", err)
			return
		}
		m.updateWatermark.Set(float64(t.Unix()))
	case "purge":
		page, err := strconv.Atoi(value)
		if err != nil {
			slog.Debug("metrics: unparseable purge watermark", "watermark", value, "error", err)
			return
		}
		m.purgeWatermark.Set(float64(page))
	}
}
