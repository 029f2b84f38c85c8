package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vereinskasse"

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeNoop   = "noop"
	OutcomeFailed = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	transitions      *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	overviewDuration prometheus.Histogram
	overviewMembers  prometheus.Gauge
	exportsCompleted *prometheus.CounterVec
}

// New registers collectors on a private registry so tests can create as
// many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_transitions_total",
			Help:      "Reminder lifecycle operations by action and outcome.",
		}, []string{"action", "outcome"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_delivery_failures_total",
			Help:      "Reminder emails the mail gateway refused or never accepted.",
		}),
		overviewDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_overview_build_seconds",
			Help:      "Time to load and aggregate the payment overview.",
			Buckets:   prometheus.DefBuckets,
		}),
		overviewMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payment_overview_members",
			Help:      "Members in the last payment overview built.",
		}),
		exportsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Finished overview exports by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.transitions, m.deliveryFailures, m.overviewDuration, m.overviewMembers, m.exportsCompleted)
	return m
}

// ObserveTransition is nil-safe so services can run without metrics.
func (m *Metrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveDeliveryFailure() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) ObserveOverview(started time.Time, members int) {
	if m == nil {
		return
	}
	m.overviewDuration.Observe(time.Since(started).Seconds())
	m.overviewMembers.Set(float64(members))
}

func (m *Metrics) ObserveExport(outcome string) {
	if m == nil {
		return
	}
	m.exportsCompleted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
