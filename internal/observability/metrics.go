package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridebot"

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "turns_total", Help: "Inbound chat turns handled"},
		[]string{"kind"},
	)
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "Time spent handling one chat turn",
		Buckets:   prometheus.DefBuckets,
	})
	TurnPanics = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "turn_panics_total", Help: "Chat turns that panicked and were recovered"})
	DispatchQueued = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "dispatch_queued_turns", Help: "Turns waiting behind an earlier turn of the same chat"})

	TripsCreated         = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "trips_created_total", Help: "Trips created by drivers"})
	TripCreationRejected = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "trip_creation_rejected_total", Help: "Trip creations refused by the active trip ceiling"})
	JoinRequests         = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "join_requests_total", Help: "Join requests recorded"})
	Reservations         = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "reservations_total", Help: "Resolved join requests by outcome"},
		[]string{"outcome"},
	)
	Cancellations = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cancellations_total", Help: "Seats released by passengers"})
	TripsDeleted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "trips_deleted_total", Help: "Trips deleted by their driver"})
	TripsExpired  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "trips_expired_total", Help: "Trips removed by the expiry sweep"})
	LiveTrips     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "live_trips", Help: "Trips currently in the registry"})

	SnapshotSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "snapshot_saves_total", Help: "Snapshot writes by result"},
		[]string{"result"},
	)
	SnapshotSaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "snapshot_save_duration_seconds",
		Help:      "Snapshot encode and write latency",
		Buckets:   prometheus.DefBuckets,
	})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_failed_total", Help: "Outbound messages that could not be delivered"})
	EventsPublishFailed = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "events_publish_failed_total", Help: "Trip events that could not be published"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
