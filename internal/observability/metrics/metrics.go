package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the service. Each instance owns its own
// registry so tests can build as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	ConfirmationsTotal *prometheus.CounterVec
	CheckInsTotal      *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	TokensPrunedTotal  *prometheus.CounterVec
}

func New(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests.",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"method", "path"},
		),
		ConfirmationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rsvp_confirmations_total",
				Help:        "RSVP confirmations by submitted status and result.",
				ConstLabels: labels,
			},
			[]string{"status", "result"},
		),
		CheckInsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rsvp_checkins_total",
				Help:        "Check-in scans by result.",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rsvp_notifications_total",
				Help:        "Per-token push notification outcomes.",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		TokensPrunedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rsvp_tokens_pruned_total",
				Help:        "Device tokens removed after the provider rejected them.",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
	}

	m.Registry = prometheus.NewRegistry()
	m.Registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.ConfirmationsTotal,
		m.CheckInsTotal,
		m.NotificationsTotal,
		m.TokensPrunedTotal,
	)
	return m
}
