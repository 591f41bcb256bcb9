// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProvisionAttemptsTotal tracks gateway provisioning attempts by outcome
	ProvisionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "provisioner",
			Name:      "attempts_total",
			Help:      "Total number of gateway provisioning attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ProvisionDuration tracks provisioning duration in seconds
	ProvisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "provisioner",
			Name:      "duration_seconds",
			Help:      "Duration of gateway provisioning attempts in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60, 90},
		},
	)

	// WebhooksReceivedTotal tracks inbound gateway webhooks by disposition
	WebhooksReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "webhook",
			Name:      "received_total",
			Help:      "Total number of inbound gateway webhooks by disposition",
		},
		[]string{"disposition"},
	)

	// RelayOutcomesTotal tracks relay pipeline outcomes
	RelayOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "relay",
			Name:      "outcomes_total",
			Help:      "Total number of relay pipeline outcomes by direction and status",
		},
		[]string{"direction", "status"},
	)

	// RelayDuration tracks relay pipeline duration in seconds
	RelayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "relay",
			Name:      "duration_seconds",
			Help:      "Duration of relay pipeline units in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// QueueJobsProcessed tracks jobs processed from the relay queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the relay queue",
		},
		[]string{"status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// QueueDepth tracks jobs waiting in the relay queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of jobs waiting in the relay queue",
		},
	)

	// CrmRequestsTotal tracks outbound CRM API requests
	CrmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "crm",
			Name:      "requests_total",
			Help:      "Total number of outbound CRM API requests",
		},
		[]string{"operation", "status_code"},
	)

	// GatewaySendsTotal tracks outbound gateway sends by outcome
	GatewaySendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "gateway",
			Name:      "sends_total",
			Help:      "Total number of outbound gateway sends by outcome",
		},
		[]string{"outcome"},
	)
)
