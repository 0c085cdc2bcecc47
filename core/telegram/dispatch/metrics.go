package dispatch

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report dispatch activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	submitted  *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	processed  *prometheus.HistogramVec
	deliveries *prometheus.CounterVec
	pending    prometheus.Gauge
	sessions   prometheus.Gauge
}

// MustNewMetrics registers the dispatch collectors with reg. Collectors that
// are already registered are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		submitted: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orderbot",
				Subsystem: "dispatch",
				Name:      "events_submitted_total",
				Help:      "Events accepted by the dispatch bridge.",
			},
			[]string{"kind"},
		)),
		rejected: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orderbot",
				Subsystem: "dispatch",
				Name:      "events_rejected_total",
				Help:      "Events refused by the dispatch bridge.",
			},
			[]string{"reason"},
		)),
		processed: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "orderbot",
				Subsystem: "dispatch",
				Name:      "event_duration_seconds",
				Help:      "Time spent processing one event, by conversation outcome.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)),
		deliveries: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orderbot",
				Subsystem: "sender",
				Name:      "deliveries_total",
				Help:      "Outbound Telegram deliveries by action and result.",
			},
			[]string{"action", "result"},
		)),
		pending: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "orderbot",
				Subsystem: "dispatch",
				Name:      "events_pending",
				Help:      "Events waiting for a worker.",
			},
		)),
		sessions: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "orderbot",
				Subsystem: "dispatch",
				Name:      "sessions_active",
				Help:      "Conversations currently in progress.",
			},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) incSubmitted(kind string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) incRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeProcessed(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// ObserveDelivery counts a finished outbound delivery.
func (m *Metrics) ObserveDelivery(action, result string, _ int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(action, result).Inc()
}
