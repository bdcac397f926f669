package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	StageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cryptosignal",
			Subsystem: "pipeline",
			Name:      "stage_seconds",
			Help:      "Latency of pipeline stages",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 25},
		},
		[]string{"stage"},
	)

	DegradedBundles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptosignal",
			Subsystem: "pipeline",
			Name:      "degraded_bundles_total",
			Help:      "Bundles built from synthetic data or the degenerate fallback",
		},
		[]string{"reliability"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(StageLatency, DegradedBundles)
	})
}

// ObserveStage records time since start under stage.
func ObserveStage(stage string, start time.Time) {
	StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
