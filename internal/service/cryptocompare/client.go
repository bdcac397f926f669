package cryptocompare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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

const (
	Name = models.SourceCryptoCompare

	// histohour accepts at most this many points per call.
	maxHourlyLimit = 2000
)

// errRateLimited marks a rate limit reported in a 200 response body.
var errRateLimited = errors.New("cryptocompare rate limit")

// Client is the secondary market data provider.
type Client struct {
	cfg   config.ProviderConfig
	quote string

	byTicker map[string]string // ticker -> cryptocompare symbol
	bySym    map[string]string

	http    *xhttp.Client
	limiter *ratelimit.Limiter
	log     *applogger.Logger
	now     func() time.Time
}

func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, log *applogger.Logger) *Client {
	c := &Client{
		cfg:      cfg.Providers.CryptoCompare,
		quote:    strings.ToUpper(cfg.QuoteCurrency),
		byTicker: make(map[string]string, len(cfg.Symbols)),
		bySym:    make(map[string]string, len(cfg.Symbols)),
		http:     xhttp.NewClient(xhttp.WithTimeout(cfg.Providers.CryptoCompare.HistoryTimeout), xhttp.WithUserAgent("cryptosignal/1.0")),
		limiter:  limiter,
		log:      log.Named("cryptocompare"),
		now:      time.Now,
	}
	for _, s := range cfg.Symbols {
		c.byTicker[s.Symbol] = s.CryptoCompare
		c.bySym[s.CryptoCompare] = s.Symbol
	}
	limiter.Configure(Name, c.cfg.CallsPerMinute)
	return c
}

func (c *Client) Name() string { return Name }

type quote struct {
	Price        float64 `json:"PRICE"`
	ChangePct24h float64 `json:"CHANGEPCT24HOUR"`
	Volume24hTo  float64 `json:"VOLUME24HOURTO"`
	MarketCap    float64 `json:"MKTCAP"`
}

type priceMultiFull struct {
	Response string                      `json:"Response"`
	Message  string                      `json:"Message"`
	Raw      map[string]map[string]quote `json:"RAW"`
}

// Prices calls /data/pricemultifull for all tickers at once.
func (c *Client) Prices(ctx context.Context, symbols []string) repository.Result[map[string]models.PricePoint] {
	fsyms := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if cc, ok := c.byTicker[strings.ToUpper(s)]; ok {
			fsyms = append(fsyms, cc)
		}
	}
	if len(fsyms) == 0 {
		return repository.Failed[map[string]models.PricePoint](fmt.Errorf("%w: no cryptocompare symbols for %v", repository.ErrUnsupportedSymbol, symbols))
	}

	tsyms := "USD"
	if c.quote != "USD" {
		tsyms += "," + c.quote
	}

	var raw priceMultiFull
	err := c.get(ctx, c.cfg.PriceTimeout, "/data/pricemultifull", map[string][]string{
		"fsyms": {strings.Join(fsyms, ",")},
		"tsyms": {tsyms},
	}, &raw)
	if err == nil {
		err = bodyError(raw.Response, raw.Message)
	}
	if err != nil {
		return classify[map[string]models.PricePoint](err)
	}

	fetched := c.now().UTC()
	out := make(map[string]models.PricePoint, len(raw.Raw))
	for sym, byCurrency := range raw.Raw {
		ticker, ok := c.bySym[sym]
		if !ok {
			continue
		}
		usd, ok := byCurrency["USD"]
		if !ok || usd.Price <= 0 {
			continue
		}
		p := models.PricePoint{
			Symbol:        ticker,
			PriceUSD:      usd.Price,
			PriceQuote:    usd.Price,
			QuoteCurrency: strings.ToLower(c.quote),
			Change24hPct:  usd.ChangePct24h,
			Volume24h:     usd.Volume24hTo,
			MarketCap:     usd.MarketCap,
			FetchedAt:     fetched,
			Source:        Name,
			Reliability:   models.ReliabilityMedium,
		}
		if q, ok := byCurrency[c.quote]; ok && q.Price > 0 {
			p.PriceQuote = q.Price
		}
		out[ticker] = p
	}
	return repository.Ok(out)
}

type histoRow struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	VolumeFrom float64 `json:"volumefrom"`
	VolumeTo   float64 `json:"volumeto"`
}

type histoResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []histoRow `json:"Data"`
	} `json:"Data"`
}

// History calls /data/v2/histohour for days*24 hourly candles.
func (c *Client) History(ctx context.Context, symbol string, days int) repository.Result[models.OHLCVSeries] {
	fsym, ok := c.byTicker[strings.ToUpper(symbol)]
	if !ok {
		return repository.Failed[models.OHLCVSeries](fmt.Errorf("%w: %s", repository.ErrUnsupportedSymbol, symbol))
	}
	if days <= 0 {
		days = repository.DefaultHistoryDays
	}
	limit := days * 24
	if limit > maxHourlyLimit {
		limit = maxHourlyLimit
	}

	var raw histoResponse
	err := c.get(ctx, c.cfg.HistoryTimeout, "/data/v2/histohour", map[string][]string{
		"fsym":  {fsym},
		"tsym":  {"USD"},
		"limit": {strconv.Itoa(limit)},
	}, &raw)
	if err == nil {
		err = bodyError(raw.Response, raw.Message)
	}
	if err != nil {
		return classify[models.OHLCVSeries](err)
	}

	candles := make([]models.Candle, 0, len(raw.Data.Data))
	for _, r := range raw.Data.Data {
		// Hours before the listing come back as all-zero rows.
		if r.Close <= 0 {
			continue
		}
		candles = append(candles, models.Candle{
			Time:   time.Unix(r.Time, 0).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.VolumeTo,
		})
	}
	if len(candles) == 0 {
		return repository.Failed[models.OHLCVSeries](fmt.Errorf("%w: histohour returned no candles", repository.ErrInsufficientData))
	}
	return repository.Ok(models.OHLCVSeries{
		Symbol:      strings.ToUpper(symbol),
		Source:      Name,
		Reliability: models.ReliabilityMedium,
		FetchedAt:   c.now().UTC(),
		Candles:     candles,
	}.Normalize())
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
		headers["Authorization"] = "Apikey " + c.cfg.APIKey
	}
	if err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + path,
		Headers:     headers,
		QueryParams: query,
	}, dest); err != nil {
		c.log.Warn("cryptocompare request failed", applogger.String("path", path), applogger.Error(err))
		return fmt.Errorf("cryptocompare %s: %w", path, err)
	}
	return nil
}

// bodyError turns an error envelope delivered with HTTP 200 into an error.
func bodyError(response, message string) error {
	if !strings.EqualFold(response, "error") {
		return nil
	}
	if strings.Contains(strings.ToLower(message), "rate limit") {
		return fmt.Errorf("%w: %s", errRateLimited, message)
	}
	return fmt.Errorf("cryptocompare error: %s", message)
}

func classify[T any](err error) repository.Result[T] {
	if errors.Is(err, errRateLimited) || xhttp.IsStatus(err, http.StatusTooManyRequests) {
		return repository.RateLimited[T](err)
	}
	return repository.Failed[T](err)
}
