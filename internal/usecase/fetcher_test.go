package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/domain/repository"
	"CryptoSignal/internal/service/cache"
	"CryptoSignal/internal/service/synthetic"
	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
	"CryptoSignal/pkg/metrics"
)

type fakeProvider struct {
	name        string
	reliability models.Reliability

	mu          sync.Mutex
	priceCalls  [][]string
	histCalls   int
	priceStatus repository.Status
	histStatus  repository.Status
	serve       map[string]float64 // tickers answered by Prices
	histLen     int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Prices(_ context.Context, symbols []string) repository.Result[map[string]models.PricePoint] {
	p.mu.Lock()
	p.priceCalls = append(p.priceCalls, append([]string(nil), symbols...))
	p.mu.Unlock()
	switch p.priceStatus {
	case repository.StatusRateLimited:
		return repository.RateLimited[map[string]models.PricePoint](nil)
	case repository.StatusFailed:
		return repository.Failed[map[string]models.PricePoint](errors.New("boom"))
	}
	out := map[string]models.PricePoint{}
	for _, s := range symbols {
		if v, ok := p.serve[s]; ok {
			out[s] = models.PricePoint{Symbol: s, PriceUSD: v, Source: p.name, Reliability: p.reliability}
		}
	}
	return repository.Ok(out)
}

func (p *fakeProvider) History(_ context.Context, symbol string, _ int) repository.Result[models.OHLCVSeries] {
	p.mu.Lock()
	p.histCalls++
	p.mu.Unlock()
	if p.histStatus != repository.StatusOK {
		return repository.Result[models.OHLCVSeries]{Status: p.histStatus, Err: errors.New("unavailable")}
	}
	s := models.OHLCVSeries{Symbol: symbol, Source: p.name, Reliability: p.reliability}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < p.histLen; i++ {
		s.Candles = append(s.Candles, models.Candle{Time: start.Add(time.Duration(i) * time.Hour), Open: 1, High: 1, Low: 1, Close: 1})
	}
	return repository.Ok(s)
}

func (p *fakeProvider) calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.priceCalls
}

func newTestFetcher(primary, secondary *fakeProvider) *Fetcher {
	cfg := config.Default()
	var p Providers
	if primary != nil {
		p.Primary = primary
	}
	if secondary != nil {
		p.Secondary = secondary
	}
	return NewFetcher(cfg, cache.NewTTLCache(), p, synthetic.NewGenerator(cfg, synthetic.WithSeed(3)), metrics.Nop{}, applogger.Nop())
}

func TestPriceFallsBackToSecondaryBeforeSynthetic(t *testing.T) {
	primary := &fakeProvider{name: "primary", priceStatus: repository.StatusFailed}
	secondary := &fakeProvider{name: "secondary", reliability: models.ReliabilityMedium, serve: map[string]float64{"BTC": 64000}}
	f := newTestFetcher(primary, secondary)

	p := f.Price(context.Background(), "btc")
	if p.Source != "secondary" || p.IsSynthetic || p.Reliability != models.ReliabilityMedium {
		t.Fatalf("price = %+v", p)
	}
	if len(primary.calls()) != 1 || len(secondary.calls()) != 1 {
		t.Fatalf("calls primary=%d secondary=%d", len(primary.calls()), len(secondary.calls()))
	}
}

func TestRateLimitedPrimaryFallsThrough(t *testing.T) {
	primary := &fakeProvider{name: "primary", priceStatus: repository.StatusRateLimited}
	secondary := &fakeProvider{name: "secondary", serve: map[string]float64{"ETH": 3400}}
	f := newTestFetcher(primary, secondary)

	if p := f.Price(context.Background(), "ETH"); p.PriceUSD != 3400 {
		t.Fatalf("price = %+v", p)
	}
}

func TestBatchPartialFailureDegradesPerSymbol(t *testing.T) {
	primary := &fakeProvider{name: "primary", reliability: models.ReliabilityHigh, serve: map[string]float64{"BTC": 65000}}
	secondary := &fakeProvider{name: "secondary", reliability: models.ReliabilityMedium, serve: map[string]float64{"ETH": 3400}}
	f := newTestFetcher(primary, secondary)

	got := f.Prices(context.Background(), []string{"BTC", "ETH", "XRP"})
	if len(got) != 3 {
		t.Fatalf("got %d results", len(got))
	}
	if got["BTC"].Source != "primary" || got["ETH"].Source != "secondary" {
		t.Fatalf("sources = %s %s", got["BTC"].Source, got["ETH"].Source)
	}
	xrp := got["XRP"]
	if !xrp.IsSynthetic || xrp.Reliability != models.ReliabilityLow {
		t.Fatalf("xrp = %+v", xrp)
	}

	if c := primary.calls(); len(c) != 1 || len(c[0]) != 3 {
		t.Fatalf("primary must get one batch call, got %v", c)
	}
	if c := secondary.calls(); len(c) != 1 || len(c[0]) != 2 || c[0][0] != "ETH" || c[0][1] != "XRP" {
		t.Fatalf("secondary must get only the missing symbols, got %v", c)
	}
}

func TestCachedSymbolsAreExcludedFromBatch(t *testing.T) {
	primary := &fakeProvider{name: "primary", serve: map[string]float64{"BTC": 65000, "ETH": 3500}}
	f := newTestFetcher(primary, nil)

	f.Prices(context.Background(), []string{"BTC"})
	f.Prices(context.Background(), []string{"BTC", "ETH"})

	c := primary.calls()
	if len(c) != 2 || len(c[1]) != 1 || c[1][0] != "ETH" {
		t.Fatalf("calls = %v", c)
	}
}

func TestTotalFailureIsSyntheticAndCached(t *testing.T) {
	primary := &fakeProvider{name: "primary", priceStatus: repository.StatusFailed}
	f := newTestFetcher(primary, nil)

	first := f.Price(context.Background(), "BTC")
	if !first.IsSynthetic || first.PriceUSD <= 0 {
		t.Fatalf("price = %+v", first)
	}
	second := f.Price(context.Background(), "BTC")
	if second.PriceUSD != first.PriceUSD {
		t.Fatal("synthetic price must be served from cache within its ttl")
	}
	if len(primary.calls()) != 1 {
		t.Fatalf("primary calls = %d", len(primary.calls()))
	}
}

type fixedBook map[string]float64

func (b fixedBook) Last(symbol string) (models.Tick, bool) {
	v, ok := b[symbol]
	return models.Tick{Symbol: symbol, Price: v}, ok
}

func TestSyntheticHistoryAnchorsOnPriceBook(t *testing.T) {
	cfg := config.Default()
	f := NewFetcher(cfg, cache.NewTTLCache(), Providers{}, synthetic.NewGenerator(cfg, synthetic.WithSeed(5)),
		metrics.Nop{}, applogger.Nop(), WithPriceBook(fixedBook{"ETH": 2000}))

	s := f.History(context.Background(), "ETH", 7)
	last, _ := s.Last()
	if !s.IsSynthetic || last.Close != 2000 {
		t.Fatalf("series synthetic=%v last=%v", s.IsSynthetic, last.Close)
	}
}

func TestHistoryShortSeriesFallsThrough(t *testing.T) {
	primary := &fakeProvider{name: "primary", histLen: 10}
	secondary := &fakeProvider{name: "secondary", histLen: 168}
	f := newTestFetcher(primary, secondary)

	s := f.History(context.Background(), "BTC", 7)
	if s.Source != "secondary" || s.Len() != 168 {
		t.Fatalf("series source=%s len=%d", s.Source, s.Len())
	}

	// Served from cache, and the copy does not alias the cached candles.
	s.Candles[0].Close = -1
	again := f.History(context.Background(), "BTC", 7)
	if again.Candles[0].Close == -1 {
		t.Fatal("callers must receive copies")
	}
	if secondary.histCalls != 1 {
		t.Fatalf("secondary history calls = %d", secondary.histCalls)
	}
}

func TestUnconfiguredSymbolsAreNeverSynthesised(t *testing.T) {
	primary := &fakeProvider{name: "primary", serve: map[string]float64{"BTC": 50000, "DOGE": 0.1}, histLen: 168}
	f := newTestFetcher(primary, nil)

	got := f.Prices(context.Background(), []string{"BTC", "doge"})
	if len(got) != 1 || got["BTC"].PriceUSD != 50000 {
		t.Fatalf("prices = %+v", got)
	}
	if _, ok := got["DOGE"]; ok {
		t.Fatal("unconfigured symbol must be left out")
	}
	if calls := primary.calls(); len(calls) != 1 || len(calls[0]) != 1 || calls[0][0] != "BTC" {
		t.Fatalf("primary calls = %v", calls)
	}

	p := f.Price(context.Background(), "DOGE")
	if p.IsSynthetic || p.PriceUSD != 0 || p.Source != models.SourceNone || p.Reliability != models.ReliabilityNone {
		t.Fatalf("price = %+v", p)
	}

	s := f.History(context.Background(), "DOGE", 7)
	if s.IsSynthetic || s.Len() != 0 || s.Source != models.SourceNone {
		t.Fatalf("series synthetic=%v len=%d source=%s", s.IsSynthetic, s.Len(), s.Source)
	}
	if primary.histCalls != 0 {
		t.Fatalf("history calls = %d", primary.histCalls)
	}
	if _, ok := f.cache.Peek(cache.Key{Symbol: "DOGE", Kind: cache.KindPrice}); ok {
		t.Fatal("nothing should be cached for an unconfigured symbol")
	}
}
