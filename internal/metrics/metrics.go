package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Room metrics
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_active_rooms",
			Help: "Rooms currently activated in this process",
		},
	)

	RoomActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_room_activations_total",
			Help: "Room activations by result",
		},
		[]string{"result"}, // "ok", "lease_held", "load_failed"
	)

	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_connections",
			Help: "Open client connections",
		},
	)

	SlowConsumerDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_slow_consumer_drops_total",
			Help: "Connections dropped because their send queue was full",
		},
	)

	// Envelope metrics
	EnvelopesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_envelopes_dropped_total",
			Help: "Inbound envelopes dropped before moderation",
		},
		[]string{"reason"}, // "malformed", "unsupported", "unknown_connection"
	)

	ModerationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_moderation_outcomes_total",
			Help: "Moderation gate decisions",
		},
		[]string{"reason"}, // "accepted", "empty", "too_long", "repeated", "rate_limited"
	)

	Upserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_upserts_total",
			Help: "Room cache upserts by performed operation",
		},
		[]string{"kind"}, // "inserted", "replaced"
	)

	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_broadcast_deliveries_total",
			Help: "Envelopes queued to receiving connections",
		},
	)

	// Infrastructure metrics
	StoreWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_store_write_failures_total",
			Help: "Message Store upserts that failed",
		},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_store_latency_seconds",
			Help:    "Message Store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"op"}, // "load", "upsert"
	)

	LeaseRenewalFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_lease_renewal_failures_total",
			Help: "Room lease renewals that failed or found the lease lost",
		},
	)
)
