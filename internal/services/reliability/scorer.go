package reliability

import (
	"math"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/services/indicators"
)

// Breakdown keys.
const (
	FactorRSI            = "rsi"
	FactorMovingAverages = "moving_averages"
	FactorVolatility     = "volatility"
	FactorMomentum       = "momentum"
	FactorConsistency    = "consistency"
)

const (
	maxRSI         = 30.0
	maxMA          = 25.0
	maxVolatility  = 20.0
	maxMomentum    = 15.0
	maxConsistency = 10.0

	levelHigh   = 75.0
	levelMedium = 55.0

	rsiPeriod        = 14
	shortMA, longMA  = 7, 20
	maBand           = 0.02
	volatilityWindow = 7
	consistencyDiffs = 4
)

// Scorer rates how far a signal can be trusted from recent price behaviour.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

// Score rates history (closes, oldest first) together with the spot snapshot.
// Every factor is reported even when its input is missing.
func (s *Scorer) Score(history []float64, price models.PricePoint) models.ReliabilityReport {
	b := map[string]models.ReliabilityFactor{
		FactorRSI:            rsiFactor(history),
		FactorMovingAverages: maFactor(history, price.Change24hPct),
		FactorVolatility:     volatilityFactor(history),
		FactorMomentum:       momentumFactor(price.Change24hPct),
		FactorConsistency:    consistencyFactor(history),
	}
	total := 0.0
	for _, f := range b {
		total += f.Points
	}
	total = math.Round(math.Max(0, math.Min(100, total))*10) / 10

	level := models.ConfidenceLow
	switch {
	case total >= levelHigh:
		level = models.ConfidenceHigh
	case total >= levelMedium:
		level = models.ConfidenceMedium
	}
	return models.ReliabilityReport{Score: total, Level: level, Breakdown: b}
}

func factor(v models.Optional, points, maxPoints float64) models.ReliabilityFactor {
	return models.ReliabilityFactor{Value: v, Points: math.Round(points*10) / 10, MaxPoints: maxPoints}
}

// rsiFactor rewards a neutral RSI; extremes are less reliable.
func rsiFactor(history []float64) models.ReliabilityFactor {
	rsi := indicators.RSI(history, rsiPeriod)
	v, ok := rsi.Get()
	switch {
	case !ok:
		return factor(rsi, maxRSI/2, maxRSI)
	case v < 30:
		return factor(rsi, 20+v/30*10, maxRSI)
	case v > 70:
		return factor(rsi, 20+(100-v)/30*10, maxRSI)
	default:
		return factor(rsi, maxRSI, maxRSI)
	}
}

// maFactor checks that the MA7/MA20 trend agrees with the 24h move. Value is
// the MA7 premium over MA20 in percent.
func maFactor(history []float64, change24h float64) models.ReliabilityFactor {
	ma7, ok7 := indicators.SMA(history, shortMA)
	ma20, ok20 := indicators.SMA(history, longMA)
	if !ok7 || !ok20 || ma20 <= 0 {
		return factor(models.None(), maxMA/2, maxMA)
	}
	v := models.Some((ma7/ma20 - 1) * 100)
	switch {
	case ma7 > ma20*(1+maBand):
		if change24h > 0 {
			return factor(v, maxMA, maxMA)
		}
		return factor(v, 15, maxMA)
	case ma7 < ma20*(1-maBand):
		if change24h < 0 {
			return factor(v, maxMA, maxMA)
		}
		return factor(v, 15, maxMA)
	default:
		return factor(v, 20, maxMA)
	}
}

// volatilityFactor uses the coefficient of variation of the last 7 prices, in percent.
func volatilityFactor(history []float64) models.ReliabilityFactor {
	mean, ok := indicators.SMA(history, volatilityWindow)
	if !ok || mean <= 0 {
		return factor(models.None(), maxVolatility/2, maxVolatility)
	}
	cv := indicators.StdDev(history[len(history)-volatilityWindow:]) / mean * 100
	v := models.Some(cv)
	switch {
	case cv < 2:
		return factor(v, 20, maxVolatility)
	case cv < 5:
		return factor(v, 15, maxVolatility)
	case cv < 10:
		return factor(v, 10, maxVolatility)
	default:
		return factor(v, 5, maxVolatility)
	}
}

// momentumFactor favours a clear but controlled 24h move.
func momentumFactor(change24h float64) models.ReliabilityFactor {
	v := models.Some(change24h)
	abs := math.Abs(change24h)
	switch {
	case abs >= 2 && abs <= 5:
		return factor(v, 15, maxMomentum)
	case abs >= 1 && abs < 2:
		return factor(v, 12, maxMomentum)
	case abs > 5:
		return factor(v, 8, maxMomentum)
	default:
		return factor(v, 5, maxMomentum)
	}
}

// consistencyFactor is the spread of the most recent period-over-period changes.
func consistencyFactor(history []float64) models.ReliabilityFactor {
	if len(history) < 2 {
		return factor(models.None(), maxConsistency/2, maxConsistency)
	}
	start := len(history) - consistencyDiffs - 1
	if start < 0 {
		start = 0
	}
	var changes []float64
	for i := start + 1; i < len(history); i++ {
		if history[i-1] == 0 {
			continue
		}
		changes = append(changes, (history[i]-history[i-1])/history[i-1]*100)
	}
	if len(changes) == 0 {
		return factor(models.None(), maxConsistency/2, maxConsistency)
	}
	sd := indicators.StdDev(changes)
	v := models.Some(sd)
	switch {
	case sd < 1:
		return factor(v, 10, maxConsistency)
	case sd < 3:
		return factor(v, 7, maxConsistency)
	default:
		return factor(v, 3, maxConsistency)
	}
}
