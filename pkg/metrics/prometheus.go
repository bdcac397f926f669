package metrics

import (
	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	signals         *prometheus.CounterVec
	signalScore     *prometheus.GaugeVec
	messagesSent    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New creates a recorder registered on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		providerCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_provider_calls_total",
				Help: "Upstream provider calls by outcome",
			},
			[]string{"provider", "dataset", "status"},
		),
		providerLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptosignal_provider_call_seconds",
				Help:    "Upstream provider call latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
			},
			[]string{"provider", "dataset"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_fallback_total",
				Help: "Payloads served per fallback tier",
			},
			[]string{"dataset", "tier"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_cache_lookups_total",
				Help: "Market data cache lookups",
			},
			[]string{"dataset", "result"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptosignal_last_price_usd",
				Help: "Last price served for a symbol",
			},
			[]string{"symbol"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_signals_total",
				Help: "Signals emitted by type and confidence",
			},
			[]string{"symbol", "type", "confidence"},
		),
		signalScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptosignal_signal_score",
				Help: "Latest signal score per symbol",
			},
			[]string{"symbol"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_bundles_published_total",
				Help: "Bundles handed to a downstream backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptosignal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptosignal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordProviderCall(provider, dataset string, status repository.Status, seconds float64) {
	r.providerCalls.WithLabelValues(provider, dataset, status.String()).Inc()
	r.providerLatency.WithLabelValues(provider, dataset).Observe(seconds)
}

// RecordFallback counts which tier finally served a payload.
func (r *Recorder) RecordFallback(dataset, tier string) {
	r.fallbacks.WithLabelValues(dataset, tier).Inc()
}

func (r *Recorder) RecordCache(dataset string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(dataset, result).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordSignal(symbol string, s models.Signal) {
	r.signals.WithLabelValues(symbol, string(s.Type), string(s.Confidence)).Inc()
	r.signalScore.WithLabelValues(symbol).Set(s.Score)
}

// RecordMessageSent records a bundle sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordProviderCall(string, string, repository.Status, float64) {}
func (Nop) RecordFallback(string, string)                                  {}
func (Nop) RecordCache(string, bool)                                       {}
func (Nop) RecordLastPrice(string, float64)                                {}
func (Nop) RecordSignal(string, models.Signal)                             {}
func (Nop) RecordMessageSent(string, string)                               {}
func (Nop) RecordError(string)                                             {}
func (Nop) RecordLatency(string, float64)                                  {}
