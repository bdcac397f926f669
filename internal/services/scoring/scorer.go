package scoring

import (
	"fmt"
	"math"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/config"
)

const (
	baseline = 50.0

	rsiMildBuy  = 40.0
	rsiMildSell = 60.0
	stochLow    = 20.0
	stochHigh   = 80.0

	// maxTrendStretch bounds the combined overbought penalty inside an uptrend.
	maxTrendStretch = 12.5
)

// Scorer accumulates indicator rules onto a neutral baseline. Unavailable
// indicators abstain.
type Scorer struct {
	c config.ScoringConfig
}

func NewScorer(cfg *config.Config) *Scorer {
	return &Scorer{c: cfg.Scoring}
}

type tally struct {
	score   float64
	factors []models.Factor
	uptrend bool
	stretch float64 // overbought points taken so far in an uptrend, <= 0
}

func (t *tally) add(name string, points float64, reason string) {
	t.score += points
	t.factors = append(t.factors, models.Factor{Name: name, Points: points, Reason: reason})
}

// overbought applies a mean-reversion penalty. Inside an uptrend the penalty
// is halved and all such penalties together stay within maxTrendStretch.
// With record false the points move the score without a factor.
func (t *tally) overbought(name string, points float64, reason string, record bool) {
	if !t.uptrend {
		t.add(name, points, reason)
		return
	}
	points /= 2
	if room := -maxTrendStretch - t.stretch; points < room {
		points = room
	}
	if points >= 0 {
		return
	}
	t.stretch += points
	if !record {
		t.score += points
		return
	}
	t.add(name, points, reason+" in uptrend")
}

// Score rates price against ind. change24h is the 24h move in percent.
func (s *Scorer) Score(price float64, ind models.IndicatorSet, change24h float64) models.Signal {
	t := &tally{score: baseline, factors: []models.Factor{}, uptrend: inUptrend(price, ind)}

	s.rsi(t, ind)
	s.macd(t, ind)
	if price > 0 {
		s.bollinger(t, price, ind)
		s.movingAverages(t, price, ind)
		s.ema(t, price, ind)
		s.levels(t, price, ind)
	}
	s.stochastic(t, ind)
	s.momentum(t, change24h)
	s.volume(t, ind)

	score := math.Round(clamp(t.score, 0, 100)*100) / 100
	sig := models.Signal{Score: score, Factors: t.factors}
	sig.Type = s.classify(score)
	if sig.Type == models.Hold {
		switch {
		case score >= s.c.MediumUpper:
			sig.Factors = append(sig.Factors, models.Factor{Name: "bias", Reason: "leaning buy"})
		case score <= s.c.MediumLower:
			sig.Factors = append(sig.Factors, models.Factor{Name: "bias", Reason: "leaning sell"})
		}
	}
	sig.Confidence = s.confidence(score, scoringFactors(sig.Factors))
	return sig
}

// inUptrend needs price above SMA20 and a rising structure: SMA20 above
// SMA50 when the series is long enough for it, otherwise a positive trend
// strength or EMA12 above SMA20.
func inUptrend(price float64, ind models.IndicatorSet) bool {
	sma20, ok := ind.SMA20.Get()
	if !ok || price <= sma20 {
		return false
	}
	if sma50, ok := ind.SMA50.Get(); ok {
		return sma20 > sma50
	}
	if ts, ok := ind.TrendStrength.Get(); ok {
		return ts > 0
	}
	ema, ok := ind.EMA12.Get()
	return ok && ema > sma20
}

func (s *Scorer) rsi(t *tally, ind models.IndicatorSet) {
	rsi, ok := ind.RSI.Get()
	if !ok {
		return
	}
	switch {
	case rsi <= s.c.RSIStrongOversold:
		t.add("rsi", 20, fmt.Sprintf("RSI %.1f strongly oversold", rsi))
	case rsi <= s.c.RSIOversold:
		t.add("rsi", 15, fmt.Sprintf("RSI %.1f oversold", rsi))
	case rsi <= rsiMildBuy:
		t.add("rsi", 5, fmt.Sprintf("RSI %.1f weak", rsi))
	case rsi >= s.c.RSIStrongOverbought:
		t.overbought("rsi", -20, fmt.Sprintf("RSI %.1f strongly overbought", rsi), stochConfirms(ind))
	case rsi >= s.c.RSIOverbought:
		t.overbought("rsi", -15, fmt.Sprintf("RSI %.1f overbought", rsi), stochConfirms(ind))
	case rsi >= rsiMildSell:
		t.overbought("rsi", -5, fmt.Sprintf("RSI %.1f elevated", rsi), stochConfirms(ind))
	}
}

// stochConfirms gates the RSI sell factor in an uptrend.
func stochConfirms(ind models.IndicatorSet) bool {
	k, ok := ind.StochK.Get()
	return ok && k > stochHigh
}

func (s *Scorer) macd(t *tally, ind models.IndicatorSet) {
	line, ok1 := ind.MACD.Get()
	sig, ok2 := ind.MACDSignal.Get()
	if !ok1 || !ok2 {
		return
	}
	prevLine, ok3 := ind.MACDPrev.Get()
	prevSig, ok4 := ind.MACDSignalPrev.Get()
	crossKnown := ok3 && ok4

	switch {
	case crossKnown && prevLine <= prevSig && line > sig:
		t.add("macd", 20, "MACD bullish crossover")
	case crossKnown && prevLine >= prevSig && line < sig:
		t.add("macd", -20, "MACD bearish crossover")
	case line > sig:
		t.add("macd", 10, "MACD above signal")
	case line < sig:
		t.add("macd", -10, "MACD below signal")
	}
}

func (s *Scorer) bollinger(t *tally, price float64, ind models.IndicatorSet) {
	if lower, ok := ind.BBLower.Get(); ok && price <= lower {
		t.add("bollinger", 15, "price at or below lower band")
		return
	}
	if upper, ok := ind.BBUpper.Get(); ok && price >= upper {
		t.overbought("bollinger", -15, "price at or above upper band", true)
	}
}

func (s *Scorer) movingAverages(t *tally, price float64, ind models.IndicatorSet) {
	sma20, ok20 := ind.SMA20.Get()
	sma50, ok50 := ind.SMA50.Get()
	if !ok20 || !ok50 {
		return
	}
	switch {
	case price > sma20 && sma20 > sma50:
		t.add("moving_averages", 12, "price above SMA20 above SMA50")
	case price < sma20 && sma20 < sma50:
		t.add("moving_averages", -12, "price below SMA20 below SMA50")
	case sma20 > sma50:
		t.add("moving_averages", 10, "SMA20 above SMA50")
	case sma20 < sma50:
		t.add("moving_averages", -10, "SMA20 below SMA50")
	}
}

func (s *Scorer) ema(t *tally, price float64, ind models.IndicatorSet) {
	ema, ok := ind.EMA12.Get()
	if !ok {
		return
	}
	switch {
	case price > ema:
		t.add("ema", 5, "price above EMA12")
	case price < ema:
		t.add("ema", -5, "price below EMA12")
	}
}

func (s *Scorer) stochastic(t *tally, ind models.IndicatorSet) {
	k, ok := ind.StochK.Get()
	if !ok {
		return
	}
	switch {
	case k < stochLow:
		t.add("stochastic", 10, fmt.Sprintf("stochastic %%K %.1f oversold", k))
	case k > stochHigh:
		t.overbought("stochastic", -10, fmt.Sprintf("stochastic %%K %.1f overbought", k), true)
	}
}

func (s *Scorer) levels(t *tally, price float64, ind models.IndicatorSet) {
	band := s.c.ProximityPct / 100
	if sup, ok := ind.Support.Get(); ok && sup > 0 && math.Abs(price-sup)/price <= band {
		t.add("support", 5, "price near support")
		return
	}
	if res, ok := ind.Resistance.Get(); ok && res > 0 && math.Abs(res-price)/price <= band {
		t.overbought("resistance", -5, "price near resistance", true)
	}
}

func (s *Scorer) momentum(t *tally, change24h float64) {
	th := s.c.MomentumPct
	switch {
	case change24h > 2*th:
		t.add("momentum", 10, fmt.Sprintf("24h %+.2f%%", change24h))
	case change24h > th:
		t.add("momentum", 6, fmt.Sprintf("24h %+.2f%%", change24h))
	case change24h < -2*th:
		t.add("momentum", -10, fmt.Sprintf("24h %+.2f%%", change24h))
	case change24h < -th:
		t.add("momentum", -6, fmt.Sprintf("24h %+.2f%%", change24h))
	}
}

// volume amplifies whatever direction the score already leans.
func (s *Scorer) volume(t *tally, ind models.IndicatorSet) {
	ratio, ok := ind.VolumeRatio.Get()
	if !ok || ratio < s.c.VolumeMultiplier {
		return
	}
	switch {
	case t.score > baseline:
		t.add("volume", 7.5, fmt.Sprintf("volume %.1fx average confirms", ratio))
	case t.score < baseline:
		t.add("volume", -7.5, fmt.Sprintf("volume %.1fx average confirms", ratio))
	}
}

func (s *Scorer) classify(score float64) models.SignalType {
	switch {
	case score >= s.c.StrongBuy:
		return models.StrongBuy
	case score >= s.c.Buy:
		return models.Buy
	case score <= s.c.StrongSell:
		return models.StrongSell
	case score <= s.c.Sell:
		return models.Sell
	default:
		return models.Hold
	}
}

// confidence needs both enough agreeing rules and a decisive score.
func (s *Scorer) confidence(score float64, factors int) models.Confidence {
	switch {
	case factors >= s.c.HighMinFactors && (score >= s.c.HighUpper || score <= s.c.HighLower):
		return models.ConfidenceHigh
	case factors >= s.c.MediumMinFactor && (score >= s.c.MediumUpper || score <= s.c.MediumLower):
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func scoringFactors(fs []models.Factor) int {
	n := 0
	for _, f := range fs {
		if f.Points != 0 {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
