package risk

import (
	"math"
	"testing"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/config"
)

func sig(t models.SignalType, c models.Confidence) models.Signal {
	return models.Signal{Type: t, Confidence: c}
}

func TestLevelOrdering(t *testing.T) {
	r := NewCalculator(config.Default())
	for _, v := range []float64{0, 0.001, 0.03, 0.2, 5} {
		buy := r.Calculate(sig(models.StrongBuy, models.ConfidenceHigh), 100, v)
		if !(buy.StopLoss < 100 && 100 < buy.TakeProfit) {
			t.Fatalf("vol %v: buy levels %+v", v, buy)
		}
		sell := r.Calculate(sig(models.Sell, models.ConfidenceMedium), 100, v)
		if !(sell.TakeProfit < 100 && 100 < sell.StopLoss) || sell.TakeProfit <= 0 {
			t.Fatalf("vol %v: sell levels %+v", v, sell)
		}
		hold := r.Calculate(sig(models.Hold, models.ConfidenceLow), 100, v)
		if hold.StopLoss != 96 || hold.TakeProfit != 106 {
			t.Fatalf("hold levels %+v", hold)
		}
	}
}

func TestHighConfidenceUsesFloorAndRatio(t *testing.T) {
	r := NewCalculator(config.Default())
	got := r.Calculate(sig(models.Buy, models.ConfidenceHigh), 100, 0.01)
	if got.StopLoss != 97 || got.TakeProfit != 107.5 || got.RiskRewardRatio != 2.5 {
		t.Fatalf("high confidence = %+v", got)
	}

	got = r.Calculate(sig(models.Buy, models.ConfidenceMedium), 100, 0.05)
	if got.StopLoss != 90 || got.TakeProfit != 120 || got.RiskRewardRatio != 2 {
		t.Fatalf("medium confidence = %+v", got)
	}
}

func TestDefaultVolatility(t *testing.T) {
	r := NewCalculator(config.Default())
	a := r.Calculate(sig(models.Buy, models.ConfidenceLow), 100, math.NaN())
	b := r.Calculate(sig(models.Buy, models.ConfidenceLow), 100, 0.03)
	if a != b {
		t.Fatalf("nan volatility %+v != default %+v", a, b)
	}
}

func TestRatioFloors(t *testing.T) {
	r := NewCalculator(config.Default())
	for _, c := range []models.Confidence{models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh} {
		got := r.Calculate(sig(models.StrongSell, c), 64000.123456789, 0.04)
		want := 1.67
		if c == models.ConfidenceHigh {
			want = 2
		}
		if got.RiskRewardRatio < want {
			t.Fatalf("%s ratio = %v", c, got.RiskRewardRatio)
		}
	}
}

func TestZeroPriceIsDegenerate(t *testing.T) {
	got := NewCalculator(config.Default()).Calculate(sig(models.Buy, models.ConfidenceHigh), 0, 0.03)
	if got.RiskRewardRatio != 1 || got.StopLoss != 0 || got.TakeProfit != 0 {
		t.Fatalf("got %+v", got)
	}
}
