package synthetic

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/config"
)

const Name = models.SourceSynthetic

// Generator produces plausible data around an anchor price when every upstream
// is unavailable. It never fails.
type Generator struct {
	points    int
	hourlyVol float64
	spotVol   float64
	quote     string

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

type Option func(*Generator)

// WithSeed makes output reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(cfg *config.Config, opts ...Option) *Generator {
	g := &Generator{
		points:    cfg.Synthetic.HistoryPoints,
		hourlyVol: cfg.Synthetic.HourlyVol,
		spotVol:   cfg.Synthetic.SpotVol,
		quote:     strings.ToLower(cfg.QuoteCurrency),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) norm(sigma float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.NormFloat64() * sigma
}

// Spot perturbs anchor by a normal shock. The quote price equals the USD price
// since no conversion rate is known.
func (g *Generator) Spot(symbol string, anchor float64) models.PricePoint {
	price := anchor * (1 + g.norm(g.spotVol))
	if price <= 0 {
		price = anchor
	}
	return models.PricePoint{
		Symbol:        strings.ToUpper(symbol),
		PriceUSD:      price,
		PriceQuote:    price,
		QuoteCurrency: g.quote,
		Change24hPct:  g.norm(3),
		FetchedAt:     g.now().UTC(),
		Source:        Name,
		IsSynthetic:   true,
		Reliability:   models.ReliabilityLow,
	}
}

// History walks hourly candles backwards from anchor, so the last close equals
// anchor and the series ends at the current hour.
func (g *Generator) History(symbol string, anchor float64) models.OHLCVSeries {
	n := g.points
	if n <= 0 {
		n = 168
	}
	end := g.now().UTC().Truncate(time.Hour)

	closes := make([]float64, n)
	closes[n-1] = anchor
	for i := n - 2; i >= 0; i-- {
		closes[i] = closes[i+1] / (1 + g.norm(g.hourlyVol))
		if closes[i] <= 0 || math.IsInf(closes[i], 0) {
			closes[i] = closes[i+1]
		}
	}

	candles := make([]models.Candle, n)
	for i := range candles {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		hi := math.Max(open, closes[i]) * (1 + math.Abs(g.norm(0.005)))
		lo := math.Min(open, closes[i]) * (1 - math.Abs(g.norm(0.005)))
		candles[i] = models.Candle{
			Time:   end.Add(-time.Duration(n-1-i) * time.Hour),
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  closes[i],
			Volume: 0,
		}
	}

	return models.OHLCVSeries{
		Symbol:      strings.ToUpper(symbol),
		Source:      Name,
		IsSynthetic: true,
		Reliability: models.ReliabilityLow,
		FetchedAt:   g.now().UTC(),
		Candles:     candles,
	}
}
