package service

import "CryptoSignal/internal/domain/models"

// IndicatorEngine derives the indicator set from a candle series.
type IndicatorEngine interface {
	Compute(series models.OHLCVSeries) models.IndicatorSet
	Volatility(series models.OHLCVSeries) (float64, bool)
}

// SignalScorer turns indicators into a bounded score and categorical signal.
type SignalScorer interface {
	Score(price float64, ind models.IndicatorSet, change24h float64) models.Signal
}

// RiskCalculator derives stop-loss and take-profit levels.
type RiskCalculator interface {
	Calculate(sig models.Signal, price, volatility float64) models.RiskParameters
}

// ReliabilityScorer rates how trustworthy a signal is from price behaviour alone.
type ReliabilityScorer interface {
	Score(history []float64, price models.PricePoint) models.ReliabilityReport
}
