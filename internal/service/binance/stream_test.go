package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
)

func newStreamServer(t *testing.T, frames ...string) (*httptest.Server, chan subscribeRequest) {
	t.Helper()
	subs := make(chan subscribeRequest, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subs <- req
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the socket open until the client leaves
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv, subs
}

func testStream(url string) *Stream {
	cfg := config.Default()
	cfg.Stream.URL = url
	cfg.Stream.PingInterval = time.Hour
	return NewStream(cfg, applogger.Nop())
}

func TestStreamDeliversMiniTickers(t *testing.T) {
	srv, subs := newStreamServer(t,
		`{"result":null,"id":1}`,
		`{"stream":"dogeusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000000,"s":"DOGEUSDT","c":"0.1","o":"0.1","q":"1"}}`,
		`{"stream":"ethusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000000,"s":"ETHUSDT","c":"2100.5","o":"2000","q":"123456.7"}}`,
	)
	s := testStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Subscribe(ctx); err != nil {
		t.Fatal(err)
	}
	req := <-subs
	if req.Method != "SUBSCRIBE" || len(req.Params) != 3 || req.Params[0] != "btcusdt@miniTicker" {
		t.Fatalf("subscribe = %+v", req)
	}

	ticks, _ := s.Read(ctx)
	select {
	case tk := <-ticks:
		if tk.Symbol != "ETH" || tk.Price != 2100.5 || tk.Volume24h != 123456.7 {
			t.Fatalf("tick = %+v", tk)
		}
		if tk.Change24hPct < 5.02 || tk.Change24hPct > 5.03 {
			t.Fatalf("change = %v", tk.Change24hPct)
		}
	case <-ctx.Done():
		t.Fatal("no tick received")
	}
}

func TestStreamReportsDisconnect(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	s := testStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	_, errs := s.Read(ctx)
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected read error")
		}
	case <-ctx.Done():
		t.Fatal("disconnect not reported")
	}
}

func TestReadWithoutConnection(t *testing.T) {
	s := testStream("ws://127.0.0.1:1")
	_, errs := s.Read(context.Background())
	if err := <-errs; err == nil {
		t.Fatal("expected error")
	}
	if s.IsConnected() {
		t.Fatal("must not report connected")
	}
}
