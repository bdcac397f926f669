package repository

import (
	"context"
	"errors"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/domain/repository"
	pkgkafka "CryptoSignal/pkg/kafka"
	applogger "CryptoSignal/pkg/logger"
)

// BundleProducer is the slice of *pkgkafka.Producer the publisher needs.
type BundleProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher writes bundles to a topic keyed by symbol, so every
// bundle for a symbol lands on the same partition in order.
type KafkaPublisher struct {
	producer BundleProducer
	topic    string
	metrics  repository.Metrics
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer BundleProducer, topic string, m repository.Metrics) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, metrics: m}
}

func (p *KafkaPublisher) Publish(ctx context.Context, b models.Bundle) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(b.Symbol), b); err != nil {
		p.metrics.RecordError("publish")
		return err
	}
	p.metrics.RecordMessageSent("kafka", b.Symbol)
	return nil
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, bundles []models.Bundle) error {
	if len(bundles) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(bundles))
	for i, b := range bundles {
		msgs[i] = pkgkafka.Message{Key: []byte(b.Symbol), Value: b}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		p.metrics.RecordError("publish")
		return err
	}
	for _, b := range bundles {
		p.metrics.RecordMessageSent("kafka", b.Symbol)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// LogPublisher writes a one-line summary per bundle. Used when Kafka is off.
type LogPublisher struct {
	log     *applogger.Logger
	metrics repository.Metrics
}

func NewLogPublisher(log *applogger.Logger, m repository.Metrics) *LogPublisher {
	return &LogPublisher{log: log.Named("publisher"), metrics: m}
}

func (p *LogPublisher) Publish(_ context.Context, b models.Bundle) error {
	p.log.Info("signal",
		applogger.String("symbol", b.Symbol),
		applogger.String("type", string(b.Signal.Type)),
		applogger.Float64("score", b.Signal.Score),
		applogger.Float64("price_usd", b.Price.PriceUSD),
		applogger.Float64("stop_loss", b.Risk.StopLoss),
		applogger.Float64("take_profit", b.Risk.TakeProfit),
		applogger.String("data_reliability", string(b.DataReliability)))
	p.metrics.RecordMessageSent("log", b.Symbol)
	return nil
}

func (p *LogPublisher) PublishBatch(ctx context.Context, bundles []models.Bundle) error {
	for _, b := range bundles {
		_ = p.Publish(ctx, b)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Fanout publishes to every backend and joins their errors.
type Fanout []repository.Publisher

func (f Fanout) Publish(ctx context.Context, b models.Bundle) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishBatch(ctx context.Context, bundles []models.Bundle) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishBatch(ctx, bundles); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
