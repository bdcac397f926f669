package repository

import (
	"context"
	"errors"
	"testing"

	"CryptoSignal/internal/domain/models"
	pkgkafka "CryptoSignal/pkg/kafka"
	applogger "CryptoSignal/pkg/logger"
	"CryptoSignal/pkg/metrics"
)

type recordingProducer struct {
	topic string
	keys  []string
	err   error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, _ interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.keys = append(p.keys, string(key))
	return nil
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	for _, m := range msgs {
		if _, ok := m.Value.(models.Bundle); !ok {
			return errors.New("value is not a bundle")
		}
		p.keys = append(p.keys, string(m.Key))
	}
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestKafkaPublisherKeysBySymbol(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaPublisher(prod, "signals", metrics.Nop{})

	if err := pub.PublishBatch(context.Background(), []models.Bundle{{Symbol: "BTC"}, {Symbol: "ETH"}}); err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish(context.Background(), models.Bundle{Symbol: "XRP"}); err != nil {
		t.Fatal(err)
	}
	if prod.topic != "signals" || len(prod.keys) != 3 || prod.keys[0] != "BTC" || prod.keys[2] != "XRP" {
		t.Fatalf("topic %s keys %v", prod.topic, prod.keys)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	down := errors.New("broker down")
	f := Fanout{
		NewKafkaPublisher(&recordingProducer{err: down}, "signals", metrics.Nop{}),
		NewLogPublisher(applogger.Nop(), metrics.Nop{}),
	}
	err := f.Publish(context.Background(), models.Bundle{Symbol: "BTC"})
	if !errors.Is(err, down) {
		t.Fatalf("err = %v", err)
	}
	if err := f.PublishBatch(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}
