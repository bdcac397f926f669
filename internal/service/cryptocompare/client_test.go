package cryptocompare

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

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
	cfg.Providers.CryptoCompare.BaseURL = srv.URL
	cfg.Providers.CryptoCompare.CallsPerMinute = 60000
	return NewClient(cfg, ratelimit.New(), applogger.Nop())
}

func TestPricesParsesRawBlock(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/pricemultifull" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("tsyms"); got != "USD,EUR" {
			t.Errorf("tsyms = %s", got)
		}
		fmt.Fprint(w, `{"RAW":{
			"BTC":{"USD":{"PRICE":64000,"CHANGEPCT24HOUR":-1.2,"VOLUME24HOURTO":5e9,"MKTCAP":1.1e12},"EUR":{"PRICE":59000}},
			"XRP":{"USD":{"PRICE":0.55,"CHANGEPCT24HOUR":3}}}}`)
	})

	res := c.Prices(context.Background(), []string{"BTC", "XRP", "ETH"})
	if !res.OK() {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if len(res.Value) != 2 {
		t.Fatalf("got %d prices", len(res.Value))
	}
	btc := res.Value["BTC"]
	if btc.PriceUSD != 64000 || btc.PriceQuote != 59000 || btc.Change24hPct != -1.2 {
		t.Fatalf("btc = %+v", btc)
	}
	if btc.Reliability != models.ReliabilityMedium || btc.Source != models.SourceCryptoCompare {
		t.Fatalf("provenance = %+v", btc)
	}
	if xrp := res.Value["XRP"]; xrp.PriceQuote != 0.55 {
		t.Fatalf("missing quote must fall back to usd, got %+v", xrp)
	}
}

func TestRateLimitInBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Response":"Error","Message":"You are over your rate limit please upgrade your account!"}`)
	})
	if res := c.Prices(context.Background(), []string{"BTC"}); res.Status != repository.StatusRateLimited {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestErrorEnvelopeFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Response":"Error","Message":"fsym is a required param."}`)
	})
	if res := c.History(context.Background(), "BTC", 7); res.Status != repository.StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestHistorySkipsEmptyRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "168" {
			t.Errorf("limit = %s", got)
		}
		fmt.Fprint(w, `{"Response":"Success","Data":{"Data":[
			{"time":1704063600,"open":0,"high":0,"low":0,"close":0},
			{"time":1704067200,"open":1,"high":2,"low":0.5,"close":1.5,"volumeto":100},
			{"time":1704070800,"open":1.5,"high":2,"low":1,"close":1.8,"volumeto":120}]}}`)
	})
	res := c.History(context.Background(), "BTC", 7)
	if !res.OK() {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if res.Value.Len() != 2 || res.Value.Candles[1].Volume != 120 {
		t.Fatalf("series = %+v", res.Value.Candles)
	}
}

func TestServerErrorFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if res := c.Prices(context.Background(), []string{"BTC"}); res.Status != repository.StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
}
