package metrics

import (
	"testing"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordProviderCall("coingecko", "price", repository.StatusRateLimited, 0.2)
	r.RecordProviderCall("coingecko", "price", repository.StatusRateLimited, 0.1)
	r.RecordFallback("price", "synthetic")
	r.RecordCache("ohlcv", true)
	r.RecordCache("ohlcv", false)
	r.RecordCache("ohlcv", false)
	r.RecordSignal("BTC", models.Signal{Type: models.Buy, Score: 68, Confidence: models.ConfidenceMedium})

	if got := testutil.ToFloat64(r.providerCalls.WithLabelValues("coingecko", "price", "rate_limited")); got != 2 {
		t.Fatalf("rate limited calls = %v", got)
	}
	if got := testutil.ToFloat64(r.cacheLookups.WithLabelValues("ohlcv", "miss")); got != 2 {
		t.Fatalf("cache misses = %v", got)
	}
	if got := testutil.ToFloat64(r.signalScore.WithLabelValues("BTC")); got != 68 {
		t.Fatalf("score gauge = %v", got)
	}

	// A second recorder on its own registry must not collide.
	_ = New(prometheus.NewRegistry())
}
