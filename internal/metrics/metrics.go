// Package metrics exposes Prometheus instrumentation for the call flow
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "buzzer"

// Metrics holds the collectors updated by the call flow
type Metrics struct {
	Webhooks       *prometheus.CounterVec
	OutboundCalls  *prometheus.CounterVec
	Cancellations  *prometheus.CounterVec
	Resolutions    *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Notifications  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Inbound call webhooks by classified scenario.",
		}, []string{"scenario"}),
		OutboundCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_calls_total",
			Help:      "Outbound tenant legs by role and placement result.",
		}, []string{"role", "result"}),
		Cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Losing-leg cancellation requests by result.",
		}, []string{"result"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Answered tenant legs by race outcome.",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Buzzer sessions held in the session table.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Lighting notifications by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.Webhooks,
		m.OutboundCalls,
		m.Cancellations,
		m.Resolutions,
		m.ActiveSessions,
		m.Notifications,
	)
	return m
}
