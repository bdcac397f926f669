package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestOptionalEncodesUnavailableAsNull(t *testing.T) {
	set := IndicatorSet{RSI: Some(42.5), SMA50: None(), MACD: Some(math.NaN())}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"rsi":42.5`) {
		t.Fatalf("rsi missing: %s", s)
	}
	if !strings.Contains(s, `"sma_50":null`) || !strings.Contains(s, `"macd":null`) {
		t.Fatalf("unavailable must be null: %s", s)
	}

	var back IndicatorSet
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := back.RSI.Get(); !ok || v != 42.5 {
		t.Fatalf("rsi = %v %v", v, ok)
	}
	if back.SMA50.Valid {
		t.Fatal("sma_50 should stay unavailable")
	}
	if set.Available() != 1 {
		t.Fatalf("available = %d", set.Available())
	}
}

func TestSeriesNormalizeDropsOutOfOrder(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	s := OHLCVSeries{Candles: []Candle{
		{Time: t0, Close: 1},
		{Time: t0.Add(time.Hour), Close: 2},
		{Time: t0.Add(time.Hour), Close: 3},
		{Time: t0.Add(30 * time.Minute), Close: 4},
		{Time: t0.Add(2 * time.Hour), Close: 5},
	}}
	n := s.Normalize()
	got := n.Closes()
	want := []float64{1, 2, 5}
	if len(got) != len(want) {
		t.Fatalf("closes = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("closes = %v, want %v", got, want)
		}
	}
}

func TestSignalTypeDirection(t *testing.T) {
	if !StrongBuy.IsBuy() || !Buy.IsBuy() || Hold.IsBuy() {
		t.Fatal("IsBuy wrong")
	}
	if !StrongSell.IsSell() || !Sell.IsSell() || Hold.IsSell() {
		t.Fatal("IsSell wrong")
	}
}

func TestWorstReliability(t *testing.T) {
	if got := WorstReliability(ReliabilityHigh, ReliabilityLow); got != ReliabilityLow {
		t.Fatalf("got %s", got)
	}
	if got := WorstReliability(ReliabilityNone, ReliabilityMedium); got != ReliabilityNone {
		t.Fatalf("got %s", got)
	}
}

func TestBundleCloneDoesNotAlias(t *testing.T) {
	b := Bundle{
		Signal:      Signal{Factors: []Factor{{Name: "rsi", Points: 15}}},
		Reliability: ReliabilityReport{Breakdown: map[string]ReliabilityFactor{"rsi": {Points: 30}}},
	}
	cp := b.Clone()
	cp.Signal.Factors[0].Points = 0
	cp.Reliability.Breakdown["rsi"] = ReliabilityFactor{}
	if b.Signal.Factors[0].Points != 15 || b.Reliability.Breakdown["rsi"].Points != 30 {
		t.Fatal("clone shares state with the original")
	}
}
