package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighearth_source_switches_total",
			Help: "Authoritative telemetry source changes",
		},
		[]string{"from", "to"},
	)

	HubFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lighearth_hub_fetch_failures_total",
			Help: "Failed pull-source snapshot fetches",
		},
	)

	PushConnectFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lighearth_push_connect_failures_total",
			Help: "Failed push-session connection attempts",
		},
	)

	ReadingsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighearth_readings_received_total",
			Help: "Canonical readings ingested per source",
		},
		[]string{"source"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighearth_notifications_sent_total",
			Help: "Alert notifications emitted per kind",
		},
		[]string{"kind"},
	)
)
