package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/config"
)

const (
	levelPlaces = 8
	ratioPlaces = 2

	// maxTargetDistance keeps every level strictly positive for extreme volatility.
	maxTargetDistance = 0.9
)

type Calculator struct {
	c config.RiskConfig
}

func NewCalculator(cfg *config.Config) *Calculator {
	return &Calculator{c: cfg.Risk}
}

// Calculate places stop-loss and take-profit around price. Buys stop below and
// target above; sells mirror; HOLD uses fixed bands.
func (r *Calculator) Calculate(sig models.Signal, price, volatility float64) models.RiskParameters {
	if math.IsNaN(volatility) || math.IsInf(volatility, 0) || volatility <= 0 {
		volatility = r.c.DefaultVol
	}
	if price <= 0 || math.IsNaN(price) {
		return models.RiskParameters{ReferencePrice: 0, RiskRewardRatio: 1}
	}

	var sl, tp float64
	switch {
	case sig.Type.IsBuy():
		d, ratio := r.distance(sig.Confidence, volatility)
		sl, tp = price*(1-d), price*(1+d*ratio)
	case sig.Type.IsSell():
		d, ratio := r.distance(sig.Confidence, volatility)
		sl, tp = price*(1+d), price*(1-d*ratio)
	default:
		sl, tp = price*(1-r.c.HoldStopPct), price*(1+r.c.HoldTakePct)
	}

	p := decimal.NewFromFloat(price)
	slD := decimal.NewFromFloat(sl).Round(levelPlaces)
	tpD := decimal.NewFromFloat(tp).Round(levelPlaces)

	rr := decimal.NewFromInt(1)
	if risk := slD.Sub(p).Abs(); !risk.IsZero() {
		rr = tpD.Sub(p).Abs().Div(risk)
	}

	out := models.RiskParameters{ReferencePrice: price}
	out.StopLoss, _ = slD.Float64()
	out.TakeProfit, _ = tpD.Float64()
	out.RiskRewardRatio, _ = rr.Round(ratioPlaces).Float64()
	return out
}

// distance returns the stop distance as a fraction of price and the reward multiple.
func (r *Calculator) distance(conf models.Confidence, vol float64) (float64, float64) {
	floor, k, ratio := r.c.OtherFloorSL, r.c.OtherVolSL, r.c.OtherRewardRatio
	if conf == models.ConfidenceHigh {
		floor, k, ratio = r.c.HighFloorSL, r.c.HighVolSL, r.c.HighRewardRatio
	}
	d := math.Max(floor, vol*k)
	if d*ratio > maxTargetDistance {
		d = maxTargetDistance / ratio
	}
	return d, ratio
}
