package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/domain/repository"
	"CryptoSignal/internal/service/ratelimit"
	"CryptoSignal/pkg/config"
	xhttp "CryptoSignal/pkg/http"
	applogger "CryptoSignal/pkg/logger"
)

const Name = models.SourceCoinGecko

// Client is the primary market data provider.
type Client struct {
	cfg       config.ProviderConfig
	quote     string
	minPoints int

	byTicker map[string]string // ticker -> coin id
	byID     map[string]string // coin id -> ticker

	http    *xhttp.Client
	limiter *ratelimit.Limiter
	log     *applogger.Logger
	now     func() time.Time
}

type Option func(*Client)

// WithMinPoints sets the candle count below which History switches to the market chart endpoint.
func WithMinPoints(n int) Option {
	return func(c *Client) { c.minPoints = n }
}

func WithHTTPClient(h *xhttp.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, log *applogger.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg.Providers.CoinGecko,
		quote:     strings.ToLower(cfg.QuoteCurrency),
		minPoints: cfg.Indicators.SMALong,
		byTicker:  make(map[string]string, len(cfg.Symbols)),
		byID:      make(map[string]string, len(cfg.Symbols)),
		http:      xhttp.NewClient(xhttp.WithTimeout(cfg.Providers.CoinGecko.HistoryTimeout), xhttp.WithUserAgent("cryptosignal/1.0")),
		limiter:   limiter,
		log:       log.Named("coingecko"),
		now:       time.Now,
	}
	for _, s := range cfg.Symbols {
		c.byTicker[s.Symbol] = s.CoinGeckoID
		c.byID[s.CoinGeckoID] = s.Symbol
	}
	for _, opt := range opts {
		opt(c)
	}
	limiter.Configure(Name, c.cfg.CallsPerMinute)
	return c
}

func (c *Client) Name() string { return Name }

// Prices fetches spot snapshots for every known ticker in one call.
func (c *Client) Prices(ctx context.Context, symbols []string) repository.Result[map[string]models.PricePoint] {
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if id, ok := c.byTicker[strings.ToUpper(s)]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return repository.Failed[map[string]models.PricePoint](fmt.Errorf("%w: no coingecko ids for %v", repository.ErrUnsupportedSymbol, symbols))
	}
	sort.Strings(ids)

	vs := []string{"usd"}
	if c.quote != "usd" {
		vs = append(vs, c.quote)
	}

	var raw map[string]map[string]float64
	err := c.get(ctx, c.cfg.PriceTimeout, "/simple/price", map[string][]string{
		"ids":                 {strings.Join(ids, ",")},
		"vs_currencies":       {strings.Join(vs, ",")},
		"include_24hr_change": {"true"},
		"include_24hr_vol":    {"true"},
		"include_market_cap":  {"true"},
	}, &raw)
	if err != nil {
		return classify[map[string]models.PricePoint](err)
	}

	fetched := c.now().UTC()
	out := make(map[string]models.PricePoint, len(raw))
	for id, fields := range raw {
		ticker, ok := c.byID[id]
		if !ok {
			continue
		}
		usd := fields["usd"]
		if usd <= 0 {
			continue
		}
		quote := usd
		if v, ok := fields[c.quote]; ok && v > 0 {
			quote = v
		}
		out[ticker] = models.PricePoint{
			Symbol:        ticker,
			PriceUSD:      usd,
			PriceQuote:    quote,
			QuoteCurrency: c.quote,
			Change24hPct:  fields["usd_24h_change"],
			Volume24h:     fields["usd_24h_vol"],
			MarketCap:     fields["usd_market_cap"],
			FetchedAt:     fetched,
			Source:        Name,
			Reliability:   models.ReliabilityHigh,
		}
	}
	return repository.Ok(out)
}

// History returns OHLC candles, switching to the market chart only when the
// OHLC call succeeded but is too coarse for indicator computation. A failed
// OHLC call is returned as is so the fetcher can fall back.
func (c *Client) History(ctx context.Context, symbol string, days int) repository.Result[models.OHLCVSeries] {
	res := c.OHLC(ctx, symbol, days)
	if !res.OK() || res.Value.Len() >= c.minPoints {
		return res
	}
	c.log.Debug("ohlc too short, trying market chart",
		applogger.String("symbol", symbol), applogger.Int("points", res.Value.Len()))
	return c.MarketChart(ctx, symbol, days)
}

// OHLC calls /coins/{id}/ohlc. The endpoint carries no volume.
func (c *Client) OHLC(ctx context.Context, symbol string, days int) repository.Result[models.OHLCVSeries] {
	id, ok := c.byTicker[strings.ToUpper(symbol)]
	if !ok {
		return repository.Failed[models.OHLCVSeries](fmt.Errorf("%w: %s", repository.ErrUnsupportedSymbol, symbol))
	}

	var rows [][]float64
	err := c.get(ctx, c.cfg.HistoryTimeout, "/coins/"+id+"/ohlc", map[string][]string{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(repository.NormalizeHistoryDays(days))},
	}, &rows)
	if err != nil {
		return classify[models.OHLCVSeries](err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			return repository.Failed[models.OHLCVSeries](fmt.Errorf("malformed ohlc row of length %d", len(r)))
		}
		candles = append(candles, models.Candle{
			Time:  time.UnixMilli(int64(r[0])).UTC(),
			Open:  r[1],
			High:  r[2],
			Low:   r[3],
			Close: r[4],
		})
	}
	return repository.Ok(c.series(symbol, candles))
}

type chartResponse struct {
	Prices       [][]float64 `json:"prices"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

// MarketChart calls /coins/{id}/market_chart and resamples the price points into hourly candles.
func (c *Client) MarketChart(ctx context.Context, symbol string, days int) repository.Result[models.OHLCVSeries] {
	id, ok := c.byTicker[strings.ToUpper(symbol)]
	if !ok {
		return repository.Failed[models.OHLCVSeries](fmt.Errorf("%w: %s", repository.ErrUnsupportedSymbol, symbol))
	}

	var raw chartResponse
	err := c.get(ctx, c.cfg.HistoryTimeout, "/coins/"+id+"/market_chart", map[string][]string{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(repository.NormalizeHistoryDays(days))},
	}, &raw)
	if err != nil {
		return classify[models.OHLCVSeries](err)
	}
	if len(raw.Prices) == 0 {
		return repository.Failed[models.OHLCVSeries](fmt.Errorf("%w: market chart returned no prices", repository.ErrInsufficientData))
	}
	return repository.Ok(c.series(symbol, Resample(raw.Prices, raw.TotalVolumes, time.Hour)))
}

func (c *Client) series(symbol string, candles []models.Candle) models.OHLCVSeries {
	return models.OHLCVSeries{
		Symbol:      strings.ToUpper(symbol),
		Source:      Name,
		Reliability: models.ReliabilityHigh,
		FetchedAt:   c.now().UTC(),
		Candles:     candles,
	}.Normalize()
}

// Resample buckets [ms, value] price points into candles of width step. The
// volume of a bucket is the last volume sample falling inside it.
func Resample(prices, volumes [][]float64, step time.Duration) []models.Candle {
	vol := make(map[int64]float64, len(volumes))
	for _, v := range volumes {
		if len(v) < 2 {
			continue
		}
		vol[time.UnixMilli(int64(v[0])).Truncate(step).Unix()] = v[1]
	}

	var out []models.Candle
	for _, p := range prices {
		if len(p) < 2 || p[1] <= 0 {
			continue
		}
		ts := time.UnixMilli(int64(p[0])).UTC().Truncate(step)
		price := p[1]
		if n := len(out); n > 0 && out[n-1].Time.Equal(ts) {
			last := &out[n-1]
			last.Close = price
			if price > last.High {
				last.High = price
			}
			if price < last.Low {
				last.Low = price
			}
			continue
		}
		out = append(out, models.Candle{
			Time: ts, Open: price, High: price, Low: price, Close: price,
			Volume: vol[ts.Unix()],
		})
	}
	return out
}

func (c *Client) get(ctx context.Context, timeout time.Duration, path string, query map[string][]string, dest interface{}) error {
	if err := c.limiter.Acquire(ctx, Name); err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	headers := map[string]string{"Accept": "application/json"}
	if c.cfg.APIKey != "" {
		headers["x-cg-demo-api-key"] = c.cfg.APIKey
	}
	start := time.Now()
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + path,
		Headers:     headers,
		QueryParams: query,
	}, dest)
	if err != nil {
		c.log.Warn("coingecko request failed",
			applogger.String("path", path),
			applogger.Duration("elapsed", time.Since(start)),
			applogger.Error(err))
		return fmt.Errorf("coingecko %s: %w", path, err)
	}
	return nil
}

func classify[T any](err error) repository.Result[T] {
	if xhttp.IsStatus(err, http.StatusTooManyRequests) {
		return repository.RateLimited[T](err)
	}
	return repository.Failed[T](err)
}
