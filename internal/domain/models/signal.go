package models

import "time"

type SignalType string

const (
	StrongBuy  SignalType = "STRONG_BUY"
	Buy        SignalType = "BUY"
	Hold       SignalType = "HOLD"
	Sell       SignalType = "SELL"
	StrongSell SignalType = "STRONG_SELL"
)

// IsBuy reports BUY and STRONG_BUY.
func (t SignalType) IsBuy() bool { return t == Buy || t == StrongBuy }

// IsSell reports SELL and STRONG_SELL.
func (t SignalType) IsSell() bool { return t == Sell || t == StrongSell }

type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Factor is one named rule that moved the score.
type Factor struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
	Reason string  `json:"reason"`
}

// Signal is derived fresh on every scoring call.
type Signal struct {
	Type       SignalType `json:"type"`
	Score      float64    `json:"score"`
	Confidence Confidence `json:"confidence"`
	Factors    []Factor   `json:"factors"`
}

// NeutralSignal is the 50/HOLD/LOW baseline.
func NeutralSignal() Signal {
	return Signal{Type: Hold, Score: 50, Confidence: ConfidenceLow, Factors: []Factor{}}
}

// RiskParameters are absolute price levels relative to the signal's reference price.
type RiskParameters struct {
	ReferencePrice  float64 `json:"reference_price"`
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

type ReliabilityFactor struct {
	Value     Optional `json:"value"`
	Points    float64  `json:"points"`
	MaxPoints float64  `json:"max_points"`
}

type ReliabilityReport struct {
	Score     float64                      `json:"score"`
	Level     Confidence                   `json:"level"`
	Breakdown map[string]ReliabilityFactor `json:"breakdown"`
}

// Bundle is the per-symbol record handed to downstream notifiers and dashboards.
type Bundle struct {
	ID              string            `json:"id"`
	Symbol          string            `json:"symbol"`
	GeneratedAt     time.Time         `json:"generated_at"`
	Price           PricePoint        `json:"price"`
	Indicators      IndicatorSet      `json:"indicators"`
	Signal          Signal            `json:"signal"`
	Risk            RiskParameters    `json:"risk"`
	Reliability     ReliabilityReport `json:"reliability"`
	DataReliability Reliability       `json:"data_reliability"`
	HistorySource   string            `json:"history_source"`
	Volatility      float64           `json:"volatility"`
}

// Clone returns a copy that shares no slices or maps with b.
func (b Bundle) Clone() Bundle {
	cp := b
	cp.Signal.Factors = append([]Factor(nil), b.Signal.Factors...)
	if cp.Signal.Factors == nil {
		cp.Signal.Factors = []Factor{}
	}
	if b.Reliability.Breakdown != nil {
		cp.Reliability.Breakdown = make(map[string]ReliabilityFactor, len(b.Reliability.Breakdown))
		for k, v := range b.Reliability.Breakdown {
			cp.Reliability.Breakdown[k] = v
		}
	}
	return cp
}
