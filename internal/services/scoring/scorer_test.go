package scoring

import (
	"math"
	"testing"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/services/indicators"
	"CryptoSignal/pkg/config"
)

func newScorer() *Scorer { return NewScorer(config.Default()) }

func TestAllUnavailableIsNeutral(t *testing.T) {
	sig := newScorer().Score(100, models.IndicatorSet{}, 0)
	if sig.Score != 50 || sig.Type != models.Hold || sig.Confidence != models.ConfidenceLow {
		t.Fatalf("signal = %+v", sig)
	}
	if sig.Factors == nil || len(sig.Factors) != 0 {
		t.Fatalf("factors = %#v", sig.Factors)
	}
}

func TestOversoldCrossoverAboveMAsIsStrongBuy(t *testing.T) {
	ind := models.IndicatorSet{
		RSI:            models.Some(22),
		MACD:           models.Some(0.5),
		MACDSignal:     models.Some(0.3),
		MACDPrev:       models.Some(0.1),
		MACDSignalPrev: models.Some(0.2),
		SMA20:          models.Some(98),
		SMA50:          models.Some(95),
	}
	sig := newScorer().Score(100, ind, 0)
	if !sig.Type.IsBuy() {
		t.Fatalf("type = %s", sig.Type)
	}
	if sig.Confidence != models.ConfidenceHigh || len(sig.Factors) < 3 {
		t.Fatalf("confidence = %s factors = %d", sig.Confidence, len(sig.Factors))
	}
	if sig.Score != 97 {
		t.Fatalf("score = %v", sig.Score)
	}
}

func TestScoreIsClamped(t *testing.T) {
	bear := models.IndicatorSet{
		RSI:            models.Some(90),
		MACD:           models.Some(-1),
		MACDSignal:     models.Some(0),
		MACDPrev:       models.Some(1),
		MACDSignalPrev: models.Some(0),
		BBUpper:        models.Some(90),
		SMA20:          models.Some(110),
		SMA50:          models.Some(120),
		EMA12:          models.Some(105),
		StochK:         models.Some(95),
		Resistance:     models.Some(101),
		VolumeRatio:    models.Some(3),
	}
	sig := newScorer().Score(100, bear, -25)
	if sig.Score != 0 || sig.Type != models.StrongSell || sig.Confidence != models.ConfidenceHigh {
		t.Fatalf("signal = %+v", sig)
	}
}

func TestConfidenceClampNeedsDecisiveScore(t *testing.T) {
	s := newScorer()
	// Three small rules that roughly cancel: many factors, no conviction.
	ind := models.IndicatorSet{
		RSI:    models.Some(38),
		EMA12:  models.Some(101),
		StochK: models.Some(50),
		SMA20:  models.Some(99),
		SMA50:  models.Some(100),
	}
	sig := s.Score(100, ind, 6)
	if len(sig.Factors) < 3 {
		t.Fatalf("factors = %+v", sig.Factors)
	}
	if sig.Confidence == models.ConfidenceHigh {
		t.Fatalf("score %v with mixed rules must not be HIGH", sig.Score)
	}

	if got := s.confidence(72, 2); got != models.ConfidenceMedium {
		t.Fatalf("two factors can at most be MEDIUM, got %s", got)
	}
	if got := s.confidence(50, 5); got != models.ConfidenceLow {
		t.Fatalf("neutral score must be LOW, got %s", got)
	}
	if got := s.confidence(29, 3); got != models.ConfidenceHigh {
		t.Fatalf("got %s", got)
	}
}

func TestThresholdOrdering(t *testing.T) {
	s := newScorer()
	cases := map[float64]models.SignalType{
		100: models.StrongBuy, 75: models.StrongBuy, 74.9: models.Buy, 65: models.Buy,
		64: models.Hold, 36: models.Hold, 35: models.Sell, 25.1: models.Sell, 25: models.StrongSell, 0: models.StrongSell,
	}
	for score, want := range cases {
		if got := s.classify(score); got != want {
			t.Fatalf("classify(%v) = %s, want %s", score, got, want)
		}
	}
}

func TestUptrendDoesNotSell(t *testing.T) {
	ind := models.IndicatorSet{
		RSI:        models.Some(85),
		MACD:       models.Some(2),
		MACDSignal: models.Some(2),
		BBUpper:    models.Some(110),
		SMA20:      models.Some(95),
		SMA50:      models.Some(90),
		EMA12:      models.Some(98),
		StochK:     models.Some(75),
		Resistance: models.Some(101),
	}
	sig := newScorer().Score(100, ind, 4)
	if sig.Type.IsSell() {
		t.Fatalf("uptrend produced %s (%v): %+v", sig.Type, sig.Score, sig.Factors)
	}
	for _, f := range sig.Factors {
		if f.Name == "rsi" {
			t.Fatal("rsi sell factor must not be recorded without stochastic confirmation")
		}
	}
}

func TestVolumeFollowsLean(t *testing.T) {
	s := newScorer()
	up := s.Score(100, models.IndicatorSet{EMA12: models.Some(90), VolumeRatio: models.Some(2)}, 0)
	if up.Score != 62.5 {
		t.Fatalf("bullish lean with volume = %v", up.Score)
	}
	flat := s.Score(100, models.IndicatorSet{VolumeRatio: models.Some(2)}, 0)
	if flat.Score != 50 {
		t.Fatalf("volume alone must not move the score, got %v", flat.Score)
	}
}

func TestHoldRecordsLean(t *testing.T) {
	sig := newScorer().Score(100, models.IndicatorSet{}, 7)
	if sig.Type != models.Hold || sig.Score != 56 {
		t.Fatalf("signal = %+v", sig)
	}
	last := sig.Factors[len(sig.Factors)-1]
	if last.Reason != "leaning buy" || last.Points != 0 {
		t.Fatalf("lean factor = %+v", last)
	}
}

// hourlySeries turns closes into hourly candles opening at the previous close.
func hourlySeries(closes []float64) models.OHLCVSeries {
	s := models.OHLCVSeries{Symbol: "BTC"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := closes[0]
	for i, c := range closes {
		s.Candles = append(s.Candles, models.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   prev,
			High:   math.Max(prev, c) * 1.002,
			Low:    math.Min(prev, c) * 0.998,
			Close:  c,
			Volume: 1000,
		})
		prev = c
	}
	return s
}

func TestSteadyRiseOverTwentyCandlesDoesNotSell(t *testing.T) {
	cfg := config.Default()
	engine := indicators.NewEngine(cfg)
	scorer := NewScorer(cfg)

	steady := make([]float64, 20)
	for i := range steady {
		steady[i] = 100 * math.Pow(1.15, float64(i)/19)
	}
	// Same climb with two shallow pullbacks on the way.
	choppy := append([]float64(nil), steady...)
	choppy[6] = choppy[5] * 0.995
	choppy[13] = choppy[12] * 0.996

	for name, closes := range map[string][]float64{"steady": steady, "choppy": choppy} {
		ind := engine.Compute(hourlySeries(closes))
		if _, ok := ind.SMA50.Get(); ok {
			t.Fatalf("%s: 20 candles cannot carry SMA50", name)
		}
		if rsi, ok := ind.RSI.Get(); !ok || rsi < 75 {
			t.Fatalf("%s: rsi = %v (%v), scenario needs an overbought RSI", name, rsi, ok)
		}
		price := closes[len(closes)-1]
		for _, change := range []float64{0, 15} {
			sig := scorer.Score(price, ind, change)
			if sig.Type.IsSell() {
				t.Fatalf("%s change=%v: %s (%v) factors %+v", name, change, sig.Type, sig.Score, sig.Factors)
			}
		}
	}
}

func TestUptrendCapsCombinedOverboughtPenalty(t *testing.T) {
	ind := models.IndicatorSet{
		RSI:        models.Some(95),
		BBUpper:    models.Some(99),
		SMA20:      models.Some(95),
		EMA12:      models.Some(97),
		StochK:     models.Some(99),
		Resistance: models.Some(100.5),
	}
	sig := newScorer().Score(100, ind, 0)
	// -12.5 overbought cap, +5 above EMA12.
	if sig.Score != 42.5 {
		t.Fatalf("score = %v factors %+v", sig.Score, sig.Factors)
	}

	ind.EMA12 = models.Some(94) // EMA below SMA20: no short-series uptrend
	if sig := newScorer().Score(100, ind, 0); !sig.Type.IsSell() {
		t.Fatalf("without an uptrend the overbought rules must sell, got %s (%v)", sig.Type, sig.Score)
	}
}
