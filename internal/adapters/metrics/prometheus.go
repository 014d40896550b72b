// Package metrics exposes engine counters through a Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/Opizontas-Studio/dc-license-bot/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "license_bot"

type Registry struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	reloads     *prometheus.CounterVec
	autoPublish *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	retries     prometheus.Counter
	queueDepth  prometheus.Gauge
}

func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_transitions_total",
			Help:      "Published post transitions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "system_license_reloads_total",
			Help:      "System license reload attempts by outcome.",
		}, []string{"outcome"}),
		autoPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_publish_total",
			Help:      "Auto-publish outcomes for new threads.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by final state.",
		}, []string{"state"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "retries_total",
			Help:      "Notification delivery retries.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "queue_depth",
			Help:      "Notifications waiting for a worker.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.transitions, r.reloads, r.autoPublish, r.deliveries, r.retries, r.queueDepth,
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Registry) ObserveTransition(kind, outcome string) {
	r.transitions.WithLabelValues(kind, outcome).Inc()
}

func (r *Registry) ObserveReload(outcome string) {
	r.reloads.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveAutoPublish(outcome string) {
	r.autoPublish.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveDelivery(state string) {
	r.deliveries.WithLabelValues(state).Inc()
}

func (r *Registry) ObserveRetry() {
	r.retries.Inc()
}

func (r *Registry) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

var (
	_ ports.Telemetry = (*Registry)(nil)
	_ relay.Metrics   = (*Registry)(nil)
)
