package synthetic

import (
	"testing"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/config"
)

func TestHistoryShape(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 34, 0, 0, time.UTC)
	g := NewGenerator(config.Default(), WithSeed(7), WithClock(func() time.Time { return now }))

	s := g.History("btc", 100000)
	if s.Len() != 168 {
		t.Fatalf("len = %d", s.Len())
	}
	if !s.IsSynthetic || s.Reliability != models.ReliabilityLow || s.Source != models.SourceSynthetic {
		t.Fatalf("provenance = %+v", s)
	}
	last, _ := s.Last()
	if last.Close != 100000 {
		t.Fatalf("last close = %v, want anchor", last.Close)
	}
	if !last.Time.Equal(now.Truncate(time.Hour)) {
		t.Fatalf("last time = %s", last.Time)
	}
	for i, c := range s.Candles {
		if c.Low > c.Open || c.Low > c.Close || c.High < c.Open || c.High < c.Close || c.Low <= 0 {
			t.Fatalf("candle %d inconsistent: %+v", i, c)
		}
		if i > 0 && c.Time.Sub(s.Candles[i-1].Time) != time.Hour {
			t.Fatalf("candle %d not hourly", i)
		}
	}
}

func TestSpotIsTaggedAndPositive(t *testing.T) {
	g := NewGenerator(config.Default(), WithSeed(1))
	for i := 0; i < 100; i++ {
		p := g.Spot("ETH", 3500)
		if p.PriceUSD <= 0 || !p.IsSynthetic || p.Reliability != models.ReliabilityLow {
			t.Fatalf("spot = %+v", p)
		}
		if p.PriceUSD < 3500*0.8 || p.PriceUSD > 3500*1.2 {
			t.Fatalf("spot %v too far from anchor", p.PriceUSD)
		}
	}
}
