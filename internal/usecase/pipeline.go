package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/domain/repository"
	domsvc "CryptoSignal/internal/domain/service"
	"CryptoSignal/internal/service/cache"
	stagemetrics "CryptoSignal/internal/service/metrics"
	"CryptoSignal/internal/services/reliability"
	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
)

// MarketData is the slice of the Fetcher the pipeline depends on.
type MarketData interface {
	Price(ctx context.Context, symbol string) models.PricePoint
	Prices(ctx context.Context, symbols []string) map[string]models.PricePoint
	History(ctx context.Context, symbol string, days int) models.OHLCVSeries
}

// Analyzers groups the pure analysis stages.
type Analyzers struct {
	Indicators  domsvc.IndicatorEngine
	Scorer      domsvc.SignalScorer
	Risk        domsvc.RiskCalculator
	Reliability domsvc.ReliabilityScorer
}

// Pipeline turns market data into signal bundles, one per symbol.
type Pipeline struct {
	cfg     *config.Config
	data    MarketData
	an      Analyzers
	cache   *cache.TTLCache
	metrics repository.Metrics
	log     *applogger.Logger
	now     func() time.Time
}

func NewPipeline(cfg *config.Config, data MarketData, an Analyzers, c *cache.TTLCache, m repository.Metrics, log *applogger.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		data:    data,
		an:      an,
		cache:   c,
		metrics: m,
		log:     log.Named("pipeline"),
		now:     time.Now,
	}
}

// Analyze returns the bundle for one symbol, from the analysis cache when fresh.
func (p *Pipeline) Analyze(ctx context.Context, symbol string) models.Bundle {
	out := p.run(ctx, []string{symbol}, true)
	if len(out) == 0 {
		return p.degenerate(strings.ToUpper(strings.TrimSpace(symbol)), errUnsupported)
	}
	return out[0]
}

// AnalyzeAll returns one bundle per distinct configured symbol, in request
// order. Unknown tickers are dropped.
func (p *Pipeline) AnalyzeAll(ctx context.Context, symbols []string) []models.Bundle {
	return p.run(ctx, symbols, true)
}

// Refresh recomputes bundles ignoring the analysis cache. Lower data tiers
// still apply their own TTLs.
func (p *Pipeline) Refresh(ctx context.Context, symbols []string) []models.Bundle {
	return p.run(ctx, symbols, false)
}

func (p *Pipeline) run(ctx context.Context, symbols []string, useCache bool) []models.Bundle {
	start := time.Now()
	symbols = p.supported(dedupe(symbols))
	if len(symbols) == 0 {
		return []models.Bundle{}
	}
	if p.cfg.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Pipeline.Timeout)
		defer cancel()
	}

	out := make([]models.Bundle, len(symbols))
	pending := make([]int, 0, len(symbols))
	for i, s := range symbols {
		if useCache {
			if b, ok := cache.Lookup[models.Bundle](ctx, p.cache, cache.Key{Symbol: s, Kind: cache.KindAnalysis}); ok {
				p.metrics.RecordCache(string(cache.KindAnalysis), true)
				out[i] = b.Clone()
				continue
			}
			p.metrics.RecordCache(string(cache.KindAnalysis), false)
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out
	}

	names := make([]string, len(pending))
	for j, i := range pending {
		names[j] = symbols[i]
	}
	prices := p.prices(ctx, names)

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := p.cfg.Pipeline.Workers
	if workers > len(pending) {
		workers = len(pending)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = p.analyze(ctx, symbols[i], prices[symbols[i]])
			}
		}()
	}
	for _, i := range pending {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	p.metrics.RecordLatency("analyze_all", time.Since(start).Seconds())
	p.log.Debug("analysis complete",
		applogger.Int("symbols", len(symbols)),
		applogger.Int("computed", len(pending)),
		applogger.Duration("elapsed", time.Since(start)))
	return out
}

// prices batches the spot fetch. A panic leaves every symbol to fetch its own price.
func (p *Pipeline) prices(ctx context.Context, symbols []string) (out map[string]models.PricePoint) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("batch price fetch panicked", applogger.Any("panic", r))
			p.metrics.RecordError("panic")
			out = map[string]models.PricePoint{}
		}
	}()
	defer stagemetrics.ObserveStage("prices", time.Now())
	return p.data.Prices(ctx, symbols)
}

// analyze builds one bundle. It never panics and never returns a partial bundle.
func (p *Pipeline) analyze(ctx context.Context, symbol string, price models.PricePoint) (b models.Bundle) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("analysis panicked",
				applogger.String("symbol", symbol),
				applogger.Any("panic", r),
				applogger.String("stack", string(debug.Stack())))
			p.metrics.RecordError("panic")
			b = p.degenerate(symbol, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return p.degenerate(symbol, err)
	}

	start := time.Now()
	if price.PriceUSD <= 0 {
		price = p.data.Price(ctx, symbol)
	}

	t := time.Now()
	hist := p.data.History(ctx, symbol, p.cfg.Pipeline.HistoryDays)
	stagemetrics.ObserveStage("history", t)

	t = time.Now()
	ind := p.an.Indicators.Compute(hist)
	vol, _ := p.an.Indicators.Volatility(hist)
	stagemetrics.ObserveStage("indicators", t)

	t = time.Now()
	sig := p.an.Scorer.Score(price.PriceUSD, ind, price.Change24hPct)
	risk := p.an.Risk.Calculate(sig, price.PriceUSD, vol)
	rel := p.an.Reliability.Score(hist.Closes(), price)
	stagemetrics.ObserveStage("scoring", t)

	b = models.Bundle{
		ID:              uuid.NewString(),
		Symbol:          symbol,
		GeneratedAt:     p.now().UTC(),
		Price:           price,
		Indicators:      ind,
		Signal:          sig,
		Risk:            risk,
		Reliability:     rel,
		DataReliability: models.WorstReliability(price.Reliability, hist.Reliability),
		HistorySource:   hist.Source,
		Volatility:      vol,
	}

	ttl := p.cfg.Cache.AnalysisTTL
	if price.IsSynthetic || hist.IsSynthetic {
		ttl = p.cfg.Cache.SyntheticTTL
		stagemetrics.DegradedBundles.WithLabelValues(string(b.DataReliability)).Inc()
	}
	cache.Store(ctx, p.cache, cache.Key{Symbol: symbol, Kind: cache.KindAnalysis}, b, ttl)

	p.metrics.RecordSignal(symbol, sig)
	p.metrics.RecordLatency("analyze", time.Since(start).Seconds())
	p.log.Info("signal generated",
		applogger.String("symbol", symbol),
		applogger.String("type", string(sig.Type)),
		applogger.Float64("score", sig.Score),
		applogger.String("confidence", string(sig.Confidence)),
		applogger.String("data_reliability", string(b.DataReliability)))
	return b.Clone()
}

// degenerate is the bundle for a symbol nothing could be computed for.
func (p *Pipeline) degenerate(symbol string, cause error) models.Bundle {
	stagemetrics.DegradedBundles.WithLabelValues(string(models.ReliabilityNone)).Inc()
	p.log.Warn("serving degenerate bundle", applogger.String("symbol", symbol), applogger.Error(cause))

	now := p.now().UTC()
	sig := models.NeutralSignal()
	breakdown := make(map[string]models.ReliabilityFactor, 5)
	for k, maxPoints := range map[string]float64{
		reliability.FactorRSI:            30,
		reliability.FactorMovingAverages: 25,
		reliability.FactorVolatility:     20,
		reliability.FactorMomentum:       15,
		reliability.FactorConsistency:    10,
	} {
		breakdown[k] = models.ReliabilityFactor{Value: models.None(), MaxPoints: maxPoints}
	}
	return models.Bundle{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		GeneratedAt: now,
		Price: models.PricePoint{
			Symbol:      symbol,
			FetchedAt:   now,
			Source:      models.SourceNone,
			Reliability: models.ReliabilityNone,
		},
		Signal:          sig,
		Risk:            models.RiskParameters{RiskRewardRatio: 1},
		Reliability:     models.ReliabilityReport{Level: models.ConfidenceLow, Breakdown: breakdown},
		DataReliability: models.ReliabilityNone,
		HistorySource:   models.SourceNone,
	}
}

var errUnsupported = errors.New("symbol is not configured")

// supported keeps the tickers present in the symbol table.
func (p *Pipeline) supported(symbols []string) []string {
	out := symbols[:0]
	var dropped []string
	for _, s := range symbols {
		if _, ok := p.cfg.Symbol(s); ok {
			out = append(out, s)
		} else {
			dropped = append(dropped, s)
		}
	}
	if len(dropped) > 0 {
		p.log.Warn("dropping unconfigured symbols", applogger.Strings("symbols", dropped))
	}
	return out
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
