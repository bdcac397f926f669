package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/domain/repository"
	"CryptoSignal/internal/service/ratelimit"
	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Providers.CoinGecko.BaseURL = srv.URL
	cfg.Providers.CoinGecko.CallsPerMinute = 60000
	cfg.Providers.CoinGecko.APIKey = "demo"
	return NewClient(cfg, ratelimit.New(), applogger.Nop())
}

func TestPricesBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "bitcoin,ethereum" {
			t.Errorf("ids = %s", got)
		}
		if got := r.URL.Query().Get("vs_currencies"); got != "usd,eur" {
			t.Errorf("vs_currencies = %s", got)
		}
		if r.Header.Get("x-cg-demo-api-key") != "demo" {
			t.Errorf("missing api key header")
		}
		fmt.Fprint(w, `{"bitcoin":{"usd":65000,"eur":60000,"usd_24h_change":2.5,"usd_24h_vol":1e10,"usd_market_cap":1.2e12}}`)
	})

	res := c.Prices(context.Background(), []string{"ETH", "BTC"})
	if !res.OK() {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if len(res.Value) != 1 {
		t.Fatalf("got %d prices, ETH must simply be missing", len(res.Value))
	}
	btc := res.Value["BTC"]
	if btc.PriceUSD != 65000 || btc.PriceQuote != 60000 || btc.QuoteCurrency != "eur" {
		t.Fatalf("btc = %+v", btc)
	}
	if btc.Source != models.SourceCoinGecko || btc.Reliability != models.ReliabilityHigh || btc.IsSynthetic {
		t.Fatalf("provenance = %+v", btc)
	}
	if btc.Change24hPct != 2.5 {
		t.Fatalf("change = %v", btc.Change24hPct)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		code int
		want repository.Status
	}{
		{http.StatusTooManyRequests, repository.StatusRateLimited},
		{http.StatusUnauthorized, repository.StatusFailed},
		{http.StatusForbidden, repository.StatusFailed},
		{http.StatusBadGateway, repository.StatusFailed},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		})
		if res := c.Prices(context.Background(), []string{"BTC"}); res.Status != tc.want {
			t.Fatalf("code %d: status = %s", tc.code, res.Status)
		}
	}
}

func TestMalformedPayloadFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":`)
	})
	if res := c.Prices(context.Background(), []string{"BTC"}); res.Status != repository.StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestUnknownSymbolIsUnsupported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL.Path)
	})
	res := c.History(context.Background(), "DOGE", 7)
	if res.Status != repository.StatusFailed || !errors.Is(res.Err, repository.ErrUnsupportedSymbol) {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
}

func TestTimeoutFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	c.cfg.PriceTimeout = 20 * time.Millisecond
	if res := c.Prices(context.Background(), []string{"BTC"}); res.Status != repository.StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
}

func hourly(n int, start time.Time) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{float64(start.Add(time.Duration(i) * time.Hour).UnixMilli()), 100 + float64(i)}
	}
	return out
}

func TestHistoryFallsBackToMarketChart(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "/ohlc"):
			if got := r.URL.Query().Get("days"); got != "7" {
				t.Errorf("days = %s", got)
			}
			fmt.Fprint(w, `[[1704067200000,1,2,0.5,1.5],[1704081600000,1.5,2,1,1.8]]`)
		case strings.HasSuffix(r.URL.Path, "/market_chart"):
			json.NewEncoder(w).Encode(chartResponse{Prices: hourly(168, start), TotalVolumes: hourly(168, start)})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	res := c.History(context.Background(), "BTC", 5)
	if !res.OK() {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	if res.Value.Len() != 168 || !res.Value.HasVolume() {
		t.Fatalf("series len = %d volume = %v", res.Value.Len(), res.Value.HasVolume())
	}
	for i := 1; i < res.Value.Len(); i++ {
		if !res.Value.Candles[i].Time.After(res.Value.Candles[i-1].Time) {
			t.Fatalf("timestamps not increasing at %d", i)
		}
	}
}

func TestHistoryRateLimitedDoesNotHitChart(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})
	res := c.History(context.Background(), "BTC", 7)
	if res.Status != repository.StatusRateLimited || calls != 1 {
		t.Fatalf("status = %s calls = %d", res.Status, calls)
	}
}

func TestHistoryFailureDoesNotHitChart(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusBadGateway} {
		var paths []string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			w.WriteHeader(code)
		})
		res := c.History(context.Background(), "BTC", 7)
		if res.Status != repository.StatusFailed {
			t.Fatalf("code %d: status = %s", code, res.Status)
		}
		if len(paths) != 1 || !strings.HasSuffix(paths[0], "/ohlc") {
			t.Fatalf("code %d: paths = %v", code, paths)
		}
	}
}

func TestResampleBuckets(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ms := func(d time.Duration) float64 { return float64(base.Add(d).UnixMilli()) }
	prices := [][]float64{
		{ms(0), 10}, {ms(20 * time.Minute), 12}, {ms(40 * time.Minute), 9},
		{ms(time.Hour), 11},
	}
	got := Resample(prices, [][]float64{{ms(50 * time.Minute), 500}}, time.Hour)
	if len(got) != 2 {
		t.Fatalf("candles = %d", len(got))
	}
	c := got[0]
	if c.Open != 10 || c.High != 12 || c.Low != 9 || c.Close != 9 || c.Volume != 500 {
		t.Fatalf("first candle = %+v", c)
	}
}
