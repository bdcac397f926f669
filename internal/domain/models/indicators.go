package models

import (
	"bytes"
	"encoding/json"
	"math"
)

// Optional is a float that may be unavailable. Unavailable values encode as JSON null,
// never as 0 or 50.
type Optional struct {
	Value float64
	Valid bool
}

// Some wraps v. Non-finite values are treated as unavailable.
func Some(v float64) Optional {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Optional{}
	}
	return Optional{Value: v, Valid: true}
}

// None is an unavailable value.
func None() Optional { return Optional{} }

// Get returns the value and whether it is available.
func (o Optional) Get() (float64, bool) { return o.Value, o.Valid }

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Optional) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// IndicatorSet is the closed set of indicators computed from one series.
type IndicatorSet struct {
	RSI            Optional `json:"rsi"`
	MACD           Optional `json:"macd"`
	MACDSignal     Optional `json:"macd_signal"`
	MACDHist       Optional `json:"macd_hist"`
	MACDPrev       Optional `json:"macd_prev"`
	MACDSignalPrev Optional `json:"macd_signal_prev"`
	BBUpper        Optional `json:"bb_upper"`
	BBMid          Optional `json:"bb_mid"`
	BBLower        Optional `json:"bb_lower"`
	SMA20          Optional `json:"sma_20"`
	SMA50          Optional `json:"sma_50"`
	EMA12          Optional `json:"ema_12"`
	EMA26          Optional `json:"ema_26"`
	StochK         Optional `json:"stoch_k"`
	StochD         Optional `json:"stoch_d"`
	Support        Optional `json:"support"`
	Resistance     Optional `json:"resistance"`
	VolumeRatio    Optional `json:"volume_ratio"`
	TrendStrength  Optional `json:"trend_strength"`
	// Points is the number of candles the set was computed from.
	Points int `json:"points"`
}

// Fields lists every indicator by its JSON name, in declaration order.
func (s IndicatorSet) Fields() []NamedValue {
	return []NamedValue{
		{"rsi", s.RSI}, {"macd", s.MACD}, {"macd_signal", s.MACDSignal}, {"macd_hist", s.MACDHist},
		{"macd_prev", s.MACDPrev}, {"macd_signal_prev", s.MACDSignalPrev},
		{"bb_upper", s.BBUpper}, {"bb_mid", s.BBMid}, {"bb_lower", s.BBLower},
		{"sma_20", s.SMA20}, {"sma_50", s.SMA50}, {"ema_12", s.EMA12}, {"ema_26", s.EMA26},
		{"stoch_k", s.StochK}, {"stoch_d", s.StochD},
		{"support", s.Support}, {"resistance", s.Resistance},
		{"volume_ratio", s.VolumeRatio}, {"trend_strength", s.TrendStrength},
	}
}

type NamedValue struct {
	Name  string
	Value Optional
}

// Available counts the indicators that could be computed.
func (s IndicatorSet) Available() int {
	n := 0
	for _, f := range s.Fields() {
		if f.Value.Valid {
			n++
		}
	}
	return n
}
