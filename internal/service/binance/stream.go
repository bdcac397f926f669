package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
)

const readLimit = 1 << 20

// Stream implements repository.TickStream over the Binance combined
// miniTicker stream.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	streams        []string
	bySymbol       map[string]string // BTCUSDT -> BTC
	log            *applogger.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	nextID    int
}

// NewStream builds a stream for every configured symbol.
func NewStream(cfg *config.Config, log *applogger.Logger) *Stream {
	s := &Stream{
		url:            cfg.Stream.URL,
		reconnectDelay: cfg.Stream.ReconnectDelay,
		pingInterval:   cfg.Stream.PingInterval,
		bySymbol:       make(map[string]string, len(cfg.Symbols)),
		log:            log.Named("binance"),
	}
	for _, sc := range cfg.Symbols {
		pair := strings.ToLower(sc.StreamSymbol)
		s.streams = append(s.streams, pair+"@miniTicker")
		s.bySymbol[strings.ToUpper(pair)] = sc.Symbol
	}
	return s
}

// Connect dials the websocket endpoint.
func (s *Stream) Connect(ctx context.Context) error {
	if _, err := url.Parse(s.url); err != nil {
		return fmt.Errorf("binance url: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	conn.SetReadLimit(readLimit)

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Info("connected", applogger.String("url", s.url))
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// Subscribe requests miniTicker updates for every configured pair.
func (s *Stream) Subscribe(ctx context.Context) error {
	conn := s.current()
	if conn == nil {
		return errors.New("binance not connected")
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}
	if err := conn.WriteJSON(subscribeRequest{Method: "SUBSCRIBE", Params: s.streams, ID: id}); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	s.log.Info("subscribed", applogger.Strings("streams", s.streams))
	return nil
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	QuoteVol  string `json:"q"`
}

// Read streams ticks until the connection fails or ctx ends. The error
// channel receives at most one error and both channels close afterwards.
func (s *Stream) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, 256)
	errs := make(chan error, 1)
	conn := s.current()

	if conn == nil {
		errs <- errors.New("binance conn nil")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	readCtx, cancel := context.WithCancel(ctx)
	go s.ping(readCtx, conn)
	go func() {
		<-readCtx.Done()
		// unblock ReadMessage on shutdown
		_ = conn.SetReadDeadline(time.Now())
	}()

	go func() {
		defer cancel()
		defer close(ticks)
		defer close(errs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance read: %w", err)
				}
				return
			}
			t, ok := s.decode(b)
			if !ok {
				continue
			}
			select {
			case ticks <- t:
			case <-ctx.Done():
				return
			default:
				// drop on backpressure; the next ticker update supersedes it
			}
		}
	}()
	return ticks, errs
}

func (s *Stream) ping(ctx context.Context, conn *websocket.Conn) {
	if s.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				s.log.Warn("ping failed", applogger.Error(err))
				return
			}
		}
	}
}

// decode accepts both combined-stream envelopes and bare payloads.
func (s *Stream) decode(b []byte) (models.Tick, bool) {
	var env envelope
	if err := json.Unmarshal(b, &env); err == nil && len(env.Data) > 0 {
		b = env.Data
	}
	var m miniTicker
	if err := json.Unmarshal(b, &m); err != nil || m.Event != "24hrMiniTicker" {
		return models.Tick{}, false
	}
	symbol, ok := s.bySymbol[strings.ToUpper(m.Symbol)]
	if !ok {
		return models.Tick{}, false
	}
	last, err := strconv.ParseFloat(m.Close, 64)
	if err != nil || last <= 0 {
		return models.Tick{}, false
	}
	open, _ := strconv.ParseFloat(m.Open, 64)
	vol, _ := strconv.ParseFloat(m.QuoteVol, 64)
	change := 0.0
	if open > 0 {
		change = (last - open) / open * 100
	}
	return models.Tick{
		Symbol:       symbol,
		Price:        last,
		Change24hPct: change,
		Volume24h:    vol,
		Time:         time.UnixMilli(m.EventTime).UTC(),
	}, true
}

// Reconnect closes the socket, waits the reconnect delay and resubscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the websocket.
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
