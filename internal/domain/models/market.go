package models

import "time"

// Reliability is the coarse data-quality tier of a payload.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
	ReliabilityNone   Reliability = "none"
)

func (r Reliability) rank() int {
	switch r {
	case ReliabilityHigh:
		return 3
	case ReliabilityMedium:
		return 2
	case ReliabilityLow:
		return 1
	default:
		return 0
	}
}

// WorstReliability returns the lower of a and b.
func WorstReliability(a, b Reliability) Reliability {
	if a.rank() <= b.rank() {
		return a
	}
	return b
}

// Known data sources.
const (
	SourceCoinGecko     = "coingecko"
	SourceCryptoCompare = "cryptocompare"
	SourceSynthetic     = "synthetic"
	SourceStream        = "stream"
	SourceNone          = "none"
)

// PricePoint is an immutable spot snapshot. A newer fetch supersedes it, never mutates it.
type PricePoint struct {
	Symbol        string      `json:"symbol"`
	PriceUSD      float64     `json:"price_usd"`
	PriceQuote    float64     `json:"price_quote"`
	QuoteCurrency string      `json:"quote_currency"`
	Change24hPct  float64     `json:"change_24h_pct"`
	Volume24h     float64     `json:"volume_24h"`
	MarketCap     float64     `json:"market_cap"`
	FetchedAt     time.Time   `json:"fetched_at"`
	Source        string      `json:"source"`
	IsSynthetic   bool        `json:"is_synthetic"`
	Reliability   Reliability `json:"reliability"`
}

// Candle is one OHLCV bucket. Volume is zero when the source does not report it.
type Candle struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// OHLCVSeries is a chronologically ordered candle series with strictly increasing timestamps.
type OHLCVSeries struct {
	Symbol      string      `json:"symbol"`
	Source      string      `json:"source"`
	IsSynthetic bool        `json:"is_synthetic"`
	Reliability Reliability `json:"reliability"`
	FetchedAt   time.Time   `json:"fetched_at"`
	Candles     []Candle    `json:"candles"`
}

func (s OHLCVSeries) Len() int { return len(s.Candles) }

func (s OHLCVSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

func (s OHLCVSeries) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

func (s OHLCVSeries) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

func (s OHLCVSeries) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// HasVolume reports whether any candle carries volume.
func (s OHLCVSeries) HasVolume() bool {
	for _, c := range s.Candles {
		if c.Volume > 0 {
			return true
		}
	}
	return false
}

// Last returns the most recent candle.
func (s OHLCVSeries) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Clone returns a deep copy so callers never share the cached backing array.
func (s OHLCVSeries) Clone() OHLCVSeries {
	cp := s
	cp.Candles = append([]Candle(nil), s.Candles...)
	return cp
}

// Normalize drops candles whose timestamp does not advance past the previous one.
func (s OHLCVSeries) Normalize() OHLCVSeries {
	out := s
	out.Candles = make([]Candle, 0, len(s.Candles))
	for _, c := range s.Candles {
		if n := len(out.Candles); n > 0 && !c.Time.After(out.Candles[n-1].Time) {
			continue
		}
		out.Candles = append(out.Candles, c)
	}
	return out
}

// Tick is one streamed ticker update.
type Tick struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Change24hPct float64   `json:"change_24h_pct"`
	Volume24h    float64   `json:"volume_24h"`
	Time         time.Time `json:"time"`
}
