package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enginepool_workers",
		Help: "Live engine workers in the pool",
	})

	hashGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enginepool_hash_per_worker_mb",
		Help: "Planned hash size per worker in MB",
	})

	headroomGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enginepool_headroom_mb",
		Help: "Effective RAM headroom from the last budget computation",
	})

	generationGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enginepool_generation",
		Help: "Current request generation",
	})

	spawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginepool_spawn_total",
		Help: "Worker spawn attempts by result",
	}, []string{"result"})

	workerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginepool_worker_failures_total",
		Help: "Workers removed after a failure, by reason",
	}, []string{"reason"})

	movesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enginepool_moves_total",
		Help: "Candidate moves settled by outcome",
	}, []string{"outcome"})

	moveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enginepool_move_duration_seconds",
		Help:    "Time to evaluate one candidate move, by phase",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"phase"})

	cancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enginepool_cancellations_total",
		Help: "Generations superseded or cancelled",
	})
)
