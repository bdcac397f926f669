package repository

import (
	"context"
	"errors"
	"fmt"

	"CryptoSignal/internal/domain/models"
)

var (
	// ErrUnsupportedSymbol is returned by providers for a ticker they have no id for.
	ErrUnsupportedSymbol = errors.New("unsupported symbol")
	// ErrInsufficientData means the upstream answered with too little to use.
	ErrInsufficientData = errors.New("insufficient data")
)

// Status is the three-way outcome of an upstream call. The fallback chain
// branches on this and nothing else.
type Status int

const (
	StatusOK Status = iota
	StatusRateLimited
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// Result carries either a payload or the reason there is none.
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

func Ok[T any](v T) Result[T] { return Result[T]{Status: StatusOK, Value: v} }

func RateLimited[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("rate limited")
	}
	return Result[T]{Status: StatusRateLimited, Err: err}
}

func Failed[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("failed")
	}
	return Result[T]{Status: StatusFailed, Err: err}
}

func (r Result[T]) OK() bool { return r.Status == StatusOK }

// PriceProvider serves spot snapshots for several tickers in one call.
// Tickers absent from a successful response are simply missing from the map.
type PriceProvider interface {
	Name() string
	Prices(ctx context.Context, symbols []string) Result[map[string]models.PricePoint]
}

// HistoryProvider serves a candle series covering the last days.
type HistoryProvider interface {
	Name() string
	History(ctx context.Context, symbol string, days int) Result[models.OHLCVSeries]
}

// MarketDataProvider is an upstream serving both dataset kinds.
type MarketDataProvider interface {
	PriceProvider
	HistoryProvider
}

// PriceBook holds the freshest streamed price per ticker.
type PriceBook interface {
	Last(symbol string) (models.Tick, bool)
}
