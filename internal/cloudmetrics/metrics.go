package cloudmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	usageEvents         *prometheus.CounterVec
	ratedCharges        *prometheus.CounterVec
	engineErrors        *prometheus.CounterVec
	activeSubscriptions *prometheus.GaugeVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		usageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarifa_usage_events_total",
			Help: "Usage events accepted for metering.",
		}, []string{"org", "code"}),
		ratedCharges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarifa_rated_charges_total",
			Help: "Rated charge rows written by rating runs.",
		}, []string{"org", "charge_model"}),
		engineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tarifa_engine_errors_total",
			Help: "Billing engine failures by operation.",
		}, []string{"org", "operation"}),
		activeSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tarifa_active_subscriptions",
			Help: "Subscriptions currently active per organization.",
		}, []string{"org"}),
	}

	if registry != nil {
		registry.MustRegister(m.usageEvents, m.ratedCharges, m.engineErrors, m.activeSubscriptions)
	}
	return m
}
