package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTurnRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_turn_requests_total",
		Help: "Total request-turn calls received",
	})

	metricFloorHeldDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_floor_held_denials_total",
		Help: "Requests denied immediately because the floor was held",
	})

	metricBucketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_buckets_created_total",
		Help: "Total pending buckets created",
	})

	metricBucketsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_buckets_flushed_total",
		Help: "Total buckets flushed",
	})

	metricFlushRaceDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_flush_race_denials_total",
		Help: "Buckets flushed while the floor was already held (all entries denied)",
	})

	metricDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_decisions_total",
		Help: "Floor decisions by winner selection reason",
	}, []string{"reason"})

	metricTurnsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coord_turns_completed_total",
		Help: "Total end-turn calls (floor releases)",
	})

	metricFloorHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coord_floor_held",
		Help: "Whether the floor is currently held (0/1)",
	})

	metricBucketCollectMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coord_bucket_collect_ms",
		Help:    "Time from bucket creation to flush",
		Buckets: prometheus.ExponentialBuckets(10, 1.6, 10),
	})
)
