package indicators

import (
	"math"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/config"
)

// MinPoints is the shortest series the engine computes anything from.
const MinPoints = 20

// Engine computes the indicator set. It is pure and safe for concurrent use.
type Engine struct {
	p config.IndicatorConfig
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{p: cfg.Indicators}
}

// Insufficient reports whether series is too short for any indicator.
func (e *Engine) Insufficient(series models.OHLCVSeries) bool {
	return series.Len() < MinPoints
}

// Compute derives every indicator the series is long enough for. The others
// stay unavailable.
func (e *Engine) Compute(series models.OHLCVSeries) models.IndicatorSet {
	set := models.IndicatorSet{Points: series.Len()}
	if e.Insufficient(series) {
		return set
	}
	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()

	set.RSI = RSI(closes, e.p.RSIPeriod)
	set.MACD, set.MACDSignal, set.MACDHist, set.MACDPrev, set.MACDSignalPrev =
		MACD(closes, e.p.MACDFast, e.p.MACDSlow, e.p.MACDSignal)
	set.BBUpper, set.BBMid, set.BBLower = Bollinger(closes, e.p.BollingerPer, e.p.BollingerK)

	set.SMA20 = optional(SMA(closes, e.p.SMAShort))
	set.SMA50 = optional(SMA(closes, e.p.SMALong))
	set.EMA12 = optional(EMA(closes, e.p.MACDFast))
	set.EMA26 = optional(EMA(closes, e.p.MACDSlow))

	set.StochK, set.StochD = Stochastic(highs, lows, closes, e.p.StochPeriod, e.p.StochSmooth)
	set.Support, set.Resistance = Levels(highs, lows, e.p.LevelsLookback)

	if series.HasVolume() {
		set.VolumeRatio = VolumeRatio(series.Volumes(), e.p.SMAShort)
	}
	set.TrendStrength = TrendStrength(closes, e.p.SMAShort)
	return set
}

// Volatility is the per-period standard deviation of log returns over the
// configured window.
func (e *Engine) Volatility(series models.OHLCVSeries) (float64, bool) {
	v, ok := RealizedVolatility(LogReturns(series.Closes()), e.p.VolWindow)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

func optional(v float64, ok bool) models.Optional {
	if !ok {
		return models.None()
	}
	return models.Some(v)
}

// RSI uses Wilder smoothing. No losses over the window gives exactly 100.
func RSI(closes []float64, period int) models.Optional {
	if period <= 0 || len(closes) < period+1 {
		return models.None()
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return models.Some(100)
	}
	rs := avgGain / avgLoss
	return models.Some(100 - 100/(1+rs))
}

// MACD returns line, signal, histogram and the previous line and signal values.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist, prevLine, prevSig models.Optional) {
	if len(closes) < slow {
		return
	}
	ef := EMASeries(closes, fast)
	es := EMASeries(closes, slow)
	macd := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macd = append(macd, ef[i]-es[i])
	}
	n := len(macd)
	line = models.Some(macd[n-1])
	if n >= 2 {
		prevLine = models.Some(macd[n-2])
	}

	ss := EMASeries(macd, signal)
	if !math.IsNaN(ss[n-1]) {
		sig = models.Some(ss[n-1])
		hist = models.Some(macd[n-1] - ss[n-1])
	}
	if n >= 2 && !math.IsNaN(ss[n-2]) {
		prevSig = models.Some(ss[n-2])
	}
	return
}

// Bollinger bands around the SMA with k population standard deviations.
func Bollinger(closes []float64, period int, k float64) (upper, mid, lower models.Optional) {
	m, ok := SMA(closes, period)
	if !ok {
		return
	}
	sd := StdDev(closes[len(closes)-period:])
	return models.Some(m + k*sd), models.Some(m), models.Some(m - k*sd)
}

// Stochastic returns %K over period and %D as the SMA of the last smooth %K values.
// A flat range gives %K 50.
func Stochastic(highs, lows, closes []float64, period, smooth int) (k, d models.Optional) {
	n := len(closes)
	if period <= 0 || n < period {
		return
	}
	if smooth < 1 {
		smooth = 1
	}
	kAt := func(end int) float64 {
		hh, ll := highs[end-period+1], lows[end-period+1]
		for i := end - period + 2; i <= end; i++ {
			hh = math.Max(hh, highs[i])
			ll = math.Min(ll, lows[i])
		}
		if hh == ll {
			return 50
		}
		return (closes[end] - ll) / (hh - ll) * 100
	}
	k = models.Some(kAt(n - 1))
	if n < period+smooth-1 {
		return
	}
	sum := 0.0
	for i := 0; i < smooth; i++ {
		sum += kAt(n - 1 - i)
	}
	d = models.Some(sum / float64(smooth))
	return
}

// Levels are the 5th percentile of lows and the 95th percentile of highs over
// the last lookback candles.
func Levels(highs, lows []float64, lookback int) (support, resistance models.Optional) {
	if len(lows) == 0 {
		return
	}
	start := 0
	if lookback > 0 && len(lows) > lookback {
		start = len(lows) - lookback
	}
	support = optional(Percentile(lows[start:], 5))
	resistance = optional(Percentile(highs[start:], 95))
	return
}

// VolumeRatio is the last volume over its period average.
func VolumeRatio(volumes []float64, period int) models.Optional {
	avg, ok := SMA(volumes, period)
	if !ok || avg <= 0 {
		return models.None()
	}
	return models.Some(volumes[len(volumes)-1] / avg)
}

// TrendStrength is the percentage change of the close over lookback periods.
func TrendStrength(closes []float64, lookback int) models.Optional {
	if lookback <= 0 || len(closes) <= lookback {
		return models.None()
	}
	past := closes[len(closes)-1-lookback]
	if past <= 0 {
		return models.None()
	}
	return models.Some((closes[len(closes)-1] - past) / past * 100)
}
