package usecase

import (
	"context"
	"strings"
	"sync"

	"CryptoSignal/internal/domain/models"
	drepo "CryptoSignal/internal/domain/repository"
	mid "CryptoSignal/internal/middleware"
	applogger "CryptoSignal/pkg/logger"
)

// PriceBook keeps the latest streamed tick per symbol. It implements
// repository.PriceBook for the synthetic tier.
type PriceBook struct {
	stream  drepo.TickStream
	filter  *mid.TickFilter
	metrics drepo.Metrics
	log     *applogger.Logger

	mu     sync.RWMutex
	last   map[string]models.Tick
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPriceBook(stream drepo.TickStream, filter *mid.TickFilter, metrics drepo.Metrics, log *applogger.Logger) *PriceBook {
	return &PriceBook{
		stream:  stream,
		filter:  filter,
		metrics: metrics,
		log:     log.Named("price-book"),
		last:    make(map[string]models.Tick),
	}
}

// Last returns the freshest tick for symbol.
func (b *PriceBook) Last(symbol string) (models.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.last[strings.ToUpper(symbol)]
	return t, ok
}

// IsConnected returns true if the ticker stream is connected.
func (b *PriceBook) IsConnected() bool {
	return b.stream != nil && b.stream.IsConnected()
}

// Start connects the stream and consumes it until ctx ends, reconnecting
// after every read failure.
func (b *PriceBook) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	if err := b.stream.Connect(ctx); err != nil {
		b.cancel()
		return err
	}
	if err := b.stream.Subscribe(ctx); err != nil {
		_ = b.stream.Close()
		b.cancel()
		return err
	}
	b.wg.Add(1)
	go b.run(ctx)
	return nil
}

func (b *PriceBook) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		ticks, errs := b.stream.Read(ctx)
		b.consume(ctx, ticks, errs)
		if ctx.Err() != nil {
			return
		}
		b.metrics.RecordError("stream")
		for {
			err := b.stream.Reconnect(ctx)
			if err == nil {
				b.log.Info("stream reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("stream reconnect failed", applogger.Error(err))
		}
	}
}

// consume drains ticks until the stream closes them, then logs the cause.
func (b *PriceBook) consume(ctx context.Context, ticks <-chan models.Tick, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				if err := <-errs; err != nil {
					b.log.Warn("stream read failed", applogger.Error(err))
				}
				return
			}
			b.apply(t)
		}
	}
}

func (b *PriceBook) apply(t models.Tick) {
	if b.filter != nil && !b.filter.Accept(t) {
		return
	}
	b.mu.Lock()
	if prev, ok := b.last[t.Symbol]; ok && t.Time.Before(prev.Time) {
		b.mu.Unlock()
		return
	}
	b.last[t.Symbol] = t
	b.mu.Unlock()
	b.metrics.RecordLastPrice(t.Symbol, t.Price)
}

// Shutdown closes the stream and waits for the consumer loop.
func (b *PriceBook) Shutdown(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	err := b.stream.Close()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
