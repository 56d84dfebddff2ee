// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessDecisions counts authorization decisions by context source and code ("OK" when granted).
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_access_decisions_total",
			Help: "Authorization decisions by context source and result code",
		},
		[]string{"source", "code"},
	)

	StagingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_staging_transitions_total",
			Help: "Staging lifecycle transitions by zone",
		},
		[]string{"zone", "transition"},
	)

	ZoneEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_zone_entries",
			Help: "Durable entries registered per zone",
		},
		[]string{"zone"},
	)

	ConnectorsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_connectors_open",
			Help: "Ephemeral connectors currently open",
		},
	)

	AuditFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_audit_failures_total",
			Help: "Audit records that could not be stored, by operation",
		},
		[]string{"operation"},
	)
)

const (
	TransitionStaged    = "staged"
	TransitionCommitted = "committed"
	TransitionTrashed   = "trashed"
	TransitionDestroyed = "destroyed"
)
