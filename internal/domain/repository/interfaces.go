package repository

import (
	"context"

	"CryptoSignal/internal/domain/models"
)

// TickStream is a live ticker feed.
type TickStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher delivers signal bundles to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, b models.Bundle) error
	PublishBatch(ctx context.Context, bundles []models.Bundle) error
	Close() error
}

type Metrics interface {
	RecordProviderCall(provider, dataset string, status Status, seconds float64)
	RecordFallback(dataset, tier string)
	RecordCache(dataset string, hit bool)
	RecordLastPrice(symbol string, price float64)
	RecordSignal(symbol string, signal models.Signal)
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
