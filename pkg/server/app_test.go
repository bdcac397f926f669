package server

import (
	"context"
	"io"
	"testing"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/pkg/config"
	applogger "CryptoSignal/pkg/logger"
)

type recordingCloser struct {
	name  string
	order *[]string
}

func (c recordingCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

type recordingPublisher struct{ order *[]string }

func (p recordingPublisher) Publish(context.Context, models.Bundle) error        { return nil }
func (p recordingPublisher) PublishBatch(context.Context, []models.Bundle) error { return nil }
func (p recordingPublisher) Close() error {
	*p.order = append(*p.order, "publisher")
	return nil
}

func TestShutdownClosesPublisherLast(t *testing.T) {
	var order []string
	app := New(config.Default(), applogger.Nop(), Components{
		Publisher: recordingPublisher{order: &order},
		Closers: []io.Closer{
			recordingCloser{name: "collector", order: &order},
			recordingCloser{name: "redis", order: &order},
		},
	})
	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	app.Shutdown()

	want := []string{"collector", "redis", "publisher"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunReturnsWhenContextEnds(t *testing.T) {
	app := New(config.Default(), applogger.Nop(), Components{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}
