package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/domain/repository"
	"CryptoSignal/internal/service/cache"
	"CryptoSignal/internal/service/synthetic"
	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
)

const (
	datasetPrice   = "price"
	datasetHistory = "ohlcv"
)

// Providers are the real upstreams in fallback order. Either may be nil.
type Providers struct {
	Primary   repository.MarketDataProvider
	Secondary repository.MarketDataProvider
}

// Fetcher resolves market data through cache, primary, secondary and synthetic
// tiers, in that order. It owns every cache entry it writes; callers get copies.
type Fetcher struct {
	cfg       *config.Config
	cache     *cache.TTLCache
	providers Providers
	synth     *synthetic.Generator
	book      repository.PriceBook
	metrics   repository.Metrics
	log       *applogger.Logger
	minPoints int

	mu      sync.RWMutex
	anchors map[string]float64 // last real USD price per ticker
}

type FetcherOption func(*Fetcher)

// WithPriceBook lets the synthetic tier anchor on streamed prices.
func WithPriceBook(b repository.PriceBook) FetcherOption {
	return func(f *Fetcher) { f.book = b }
}

func NewFetcher(cfg *config.Config, c *cache.TTLCache, p Providers, synth *synthetic.Generator, m repository.Metrics, log *applogger.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		cfg:       cfg,
		cache:     c,
		providers: p,
		synth:     synth,
		metrics:   m,
		log:       log.Named("fetcher"),
		minPoints: cfg.Indicators.SMALong,
		anchors:   make(map[string]float64),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Price returns a spot snapshot for one ticker. It never fails; an
// unconfigured ticker gets an empty point with no source.
func (f *Fetcher) Price(ctx context.Context, symbol string) models.PricePoint {
	symbol = strings.ToUpper(symbol)
	if p, ok := f.Prices(ctx, []string{symbol})[symbol]; ok {
		return p
	}
	return models.PricePoint{Symbol: symbol, FetchedAt: time.Now().UTC(), Source: models.SourceNone, Reliability: models.ReliabilityNone}
}

// Prices resolves several tickers with at most one call per upstream. Every
// requested configured ticker is present in the result; unknown ones are left
// out.
func (f *Fetcher) Prices(ctx context.Context, symbols []string) map[string]models.PricePoint {
	out := make(map[string]models.PricePoint, len(symbols))
	need := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		if _, ok := f.cfg.Symbol(s); !ok {
			f.log.Debug("skipping unconfigured symbol", applogger.String("symbol", s))
			continue
		}
		if p, ok := cache.Lookup[models.PricePoint](ctx, f.cache, cache.Key{Symbol: s, Kind: cache.KindPrice}); ok {
			f.metrics.RecordCache(datasetPrice, true)
			out[s] = p
			continue
		}
		f.metrics.RecordCache(datasetPrice, false)
		need = append(need, s)
	}
	if len(need) == 0 {
		return out
	}

	need = f.pricesFrom(ctx, f.providers.Primary, need, out)
	need = f.pricesFrom(ctx, f.providers.Secondary, need, out)
	for _, s := range need {
		out[s] = f.syntheticPrice(ctx, s)
	}
	return out
}

// pricesFrom asks one provider for need, fills out and returns what is still missing.
func (f *Fetcher) pricesFrom(ctx context.Context, p repository.PriceProvider, need []string, out map[string]models.PricePoint) []string {
	if p == nil || len(need) == 0 {
		return need
	}
	start := time.Now()
	res := p.Prices(ctx, need)
	f.metrics.RecordProviderCall(p.Name(), datasetPrice, res.Status, time.Since(start).Seconds())
	if !res.OK() {
		f.log.Warn("price provider unavailable",
			applogger.String("provider", p.Name()),
			applogger.String("status", res.Status.String()),
			applogger.Strings("symbols", need),
			applogger.Error(res.Err))
		return need
	}

	var missing []string
	for _, s := range need {
		pp, ok := res.Value[s]
		if !ok {
			missing = append(missing, s)
			continue
		}
		cache.Store(ctx, f.cache, cache.Key{Symbol: s, Kind: cache.KindPrice}, pp, f.cfg.Cache.PriceTTL)
		f.setAnchor(s, pp.PriceUSD)
		f.metrics.RecordLastPrice(s, pp.PriceUSD)
		f.metrics.RecordFallback(datasetPrice, p.Name())
		out[s] = pp
	}
	if len(missing) > 0 {
		f.log.Debug("provider response missing symbols",
			applogger.String("provider", p.Name()), applogger.Strings("symbols", missing))
	}
	return missing
}

func (f *Fetcher) syntheticPrice(ctx context.Context, symbol string) models.PricePoint {
	anchor, from := f.lastKnown(symbol)
	p := f.synth.Spot(symbol, anchor)
	cache.Store(ctx, f.cache, cache.Key{Symbol: symbol, Kind: cache.KindPrice}, p, f.cfg.Cache.SyntheticTTL)
	f.metrics.RecordFallback(datasetPrice, synthetic.Name)
	f.log.Warn("serving synthetic price",
		applogger.String("symbol", symbol),
		applogger.String("anchor_source", from),
		applogger.Float64("anchor", anchor))
	return p
}

// History returns a candle series covering days. It never fails; an
// unconfigured ticker gets an empty series with no source.
func (f *Fetcher) History(ctx context.Context, symbol string, days int) models.OHLCVSeries {
	symbol = strings.ToUpper(symbol)
	if _, ok := f.cfg.Symbol(symbol); !ok {
		return models.OHLCVSeries{Symbol: symbol, Source: models.SourceNone, Reliability: models.ReliabilityNone}
	}
	days = repository.NormalizeHistoryDays(days)
	key := historyKey(symbol, days)

	if s, ok := cache.Lookup[models.OHLCVSeries](ctx, f.cache, key); ok {
		f.metrics.RecordCache(datasetHistory, true)
		return s.Clone()
	}
	f.metrics.RecordCache(datasetHistory, false)

	for _, p := range []repository.HistoryProvider{f.providers.Primary, f.providers.Secondary} {
		if p == nil {
			continue
		}
		if s, ok := f.historyFrom(ctx, p, symbol, days); ok {
			cache.Store(ctx, f.cache, key, s, f.cfg.Cache.HistoryTTL)
			f.metrics.RecordFallback(datasetHistory, p.Name())
			if last, ok := s.Last(); ok {
				f.setAnchorIfMissing(symbol, last.Close)
			}
			return s.Clone()
		}
	}

	anchor, from := f.lastKnown(symbol)
	s := f.synth.History(symbol, anchor)
	cache.Store(ctx, f.cache, key, s, f.cfg.Cache.SyntheticTTL)
	f.metrics.RecordFallback(datasetHistory, synthetic.Name)
	f.log.Warn("serving synthetic history",
		applogger.String("symbol", symbol),
		applogger.String("anchor_source", from),
		applogger.Int("points", s.Len()))
	return s.Clone()
}

func (f *Fetcher) historyFrom(ctx context.Context, p repository.HistoryProvider, symbol string, days int) (models.OHLCVSeries, bool) {
	start := time.Now()
	res := p.History(ctx, symbol, days)
	f.metrics.RecordProviderCall(p.Name(), datasetHistory, res.Status, time.Since(start).Seconds())
	if !res.OK() {
		f.log.Warn("history provider unavailable",
			applogger.String("provider", p.Name()),
			applogger.String("symbol", symbol),
			applogger.String("status", res.Status.String()),
			applogger.Error(res.Err))
		return models.OHLCVSeries{}, false
	}
	if res.Value.Len() < f.minPoints {
		f.log.Warn("history too short",
			applogger.String("provider", p.Name()),
			applogger.String("symbol", symbol),
			applogger.Int("points", res.Value.Len()),
			applogger.Int("min_points", f.minPoints))
		return models.OHLCVSeries{}, false
	}
	return res.Value, true
}

// lastKnown picks the synthetic anchor: a real cached price, then the streamed
// price, then the last real price seen, then the configured baseline.
func (f *Fetcher) lastKnown(symbol string) (float64, string) {
	if e, ok := f.cache.Peek(cache.Key{Symbol: symbol, Kind: cache.KindPrice}); ok {
		if p, ok := e.Payload.(models.PricePoint); ok && !p.IsSynthetic && p.PriceUSD > 0 {
			return p.PriceUSD, "cache"
		}
	}
	if f.book != nil {
		if t, ok := f.book.Last(symbol); ok && t.Price > 0 {
			return t.Price, models.SourceStream
		}
	}
	f.mu.RLock()
	v, ok := f.anchors[symbol]
	f.mu.RUnlock()
	if ok {
		return v, "last_real"
	}
	sc, _ := f.cfg.Symbol(symbol)
	return sc.BaselinePrice, "baseline"
}

func (f *Fetcher) setAnchor(symbol string, price float64) {
	if price <= 0 {
		return
	}
	f.mu.Lock()
	f.anchors[symbol] = price
	f.mu.Unlock()
}

func (f *Fetcher) setAnchorIfMissing(symbol string, price float64) {
	if price <= 0 {
		return
	}
	f.mu.Lock()
	if _, ok := f.anchors[symbol]; !ok {
		f.anchors[symbol] = price
	}
	f.mu.Unlock()
}

func historyKey(symbol string, days int) cache.Key {
	return cache.Key{Symbol: fmt.Sprintf("%s:%dd", symbol, days), Kind: cache.KindOHLCV}
}
