// Package metrics exposes the Prometheus instruments of the alarm core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "alarmcore_"

// Notification kinds used as label values.
const (
	KindChanges   = "changes"
	KindBroadcast = "broadcast"
)

// Metrics groups the instruments of one server instance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ingested        *prometheus.CounterVec
	ingestErrors    *prometheus.CounterVec
	acknowledged    prometheus.Counter
	shelveRequests  *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	deliveryErrors  *prometheus.CounterVec
	notifyLatency   *prometheus.HistogramVec
	observers       prometheus.Gauge
	alarms          prometheus.Gauge
	activeByView    *prometheus.GaugeVec
	unshelveExpired prometheus.Counter
}

// New registers the instruments in reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ingested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingested_total",
				Help: "Total ingested messages by result status",
			},
			[]string{"status"},
		),
		ingestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total rejected messages by reason",
			},
			[]string{"reason"},
		),
		acknowledged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "acknowledged_total",
				Help: "Total alarms moved to acknowledged",
			},
		),
		shelveRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "shelve_requests_total",
				Help: "Total shelve requests by result status",
			},
			[]string{"status"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notification passes that delivered a payload by kind",
			},
			[]string{"kind"},
		),
		deliveryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "delivery_errors_total",
				Help: "Total failed deliveries to observers by kind",
			},
			[]string{"kind"},
		),
		notifyLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "notify_latency_seconds",
				Help:    "Duration of a notification pass in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		observers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "observers",
				Help: "Number of registered observers",
			},
		),
		alarms: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alarms",
				Help: "Number of alarms in the store",
			},
		),
		activeByView: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_unacknowledged_alarms",
				Help: "Set and unacknowledged alarms per view",
			},
			[]string{"view"},
		),
		unshelveExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "unshelve_expired_total",
				Help: "Total alarms unshelved because their shelve expired",
			},
		),
	}
}

// Ingested counts one ingested message with its status.
func (m *Metrics) Ingested(status string) {
	if m == nil {
		return
	}

	m.ingested.WithLabelValues(status).Inc()
}

// IngestFailed counts one rejected message.
func (m *Metrics) IngestFailed(reason string) {
	if m == nil {
		return
	}

	m.ingestErrors.WithLabelValues(reason).Inc()
}

// Acknowledged counts alarms moved to acknowledged.
func (m *Metrics) Acknowledged(n int) {
	if m == nil {
		return
	}

	m.acknowledged.Add(float64(n))
}

// ShelveRequested counts one shelve request with its status.
func (m *Metrics) ShelveRequested(status string) {
	if m == nil {
		return
	}

	m.shelveRequests.WithLabelValues(status).Inc()
}

// Notified records a notification pass of the given kind.
func (m *Metrics) Notified(kind string, started time.Time, failures int) {
	if m == nil {
		return
	}

	m.notifications.WithLabelValues(kind).Inc()
	m.notifyLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())

	if failures > 0 {
		m.deliveryErrors.WithLabelValues(kind).Add(float64(failures))
	}
}

// SetObservers sets the number of registered observers.
func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}

	m.observers.Set(float64(n))
}

// SetAlarms sets the number of stored alarms.
func (m *Metrics) SetAlarms(n int) {
	if m == nil {
		return
	}

	m.alarms.Set(float64(n))
}

// SetCounters mirrors the per-view counters.
func (m *Metrics) SetCounters(counters map[string]int) {
	if m == nil {
		return
	}

	for view, count := range counters {
		m.activeByView.WithLabelValues(view).Set(float64(count))
	}
}

// UnshelveExpired counts alarms unshelved by the expiry check.
func (m *Metrics) UnshelveExpired(n int) {
	if m == nil {
		return
	}

	m.unshelveExpired.Add(float64(n))
}
