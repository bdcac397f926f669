package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "CryptoSignal/internal/domain/repository"
	"CryptoSignal/internal/usecase"
	"CryptoSignal/pkg/config"
	xhttp "CryptoSignal/pkg/http"
	pkgkafka "CryptoSignal/pkg/kafka"
	applogger "CryptoSignal/pkg/logger"
)

// App encapsulates the entire application lifecycle. Optional parts are nil
// when disabled in config.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	book       *usecase.PriceBook
	scheduler  *usecase.Scheduler
	consumer   *pkgkafka.Consumer
	handler    pkgkafka.MessageHandler
	publisher  domrepo.Publisher
	closers    []io.Closer
}

// Components groups what New needs. Zero fields are skipped.
type Components struct {
	HTTP      *xhttp.Server
	PriceBook *usecase.PriceBook
	Scheduler *usecase.Scheduler
	Consumer  *pkgkafka.Consumer
	Handler   pkgkafka.MessageHandler
	Publisher domrepo.Publisher
	// Closers run in order, before the publisher (and its producer) closes.
	Closers []io.Closer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	return &App{
		cfg:        cfg,
		log:        log.Named("app"),
		httpServer: c.HTTP,
		book:       c.PriceBook,
		scheduler:  c.Scheduler,
		consumer:   c.Consumer,
		handler:    c.Handler,
		publisher:  c.Publisher,
		closers:    c.Closers,
	}
}

// Run starts every component and blocks until SIGINT/SIGTERM or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Shutdown()
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.Shutdown()
	return nil
}

// Start launches the components without blocking. The stream is best effort:
// the synthetic tier falls back to baselines without it.
func (a *App) Start(ctx context.Context) error {
	if a.book != nil {
		if err := a.book.Start(ctx); err != nil {
			a.log.Warn("ticker stream unavailable", applogger.Error(err))
		} else {
			a.log.Info("ticker stream started")
		}
	}

	if a.consumer != nil && a.handler != nil {
		a.consumer.RegisterHandler(a.handler)
		if err := a.consumer.Start(ctx); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.handler.Topic()))
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return err
		}
	}

	a.log.Info("started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("symbols", len(a.cfg.Symbols)),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
		applogger.Bool("redis", a.cfg.Redis.Enabled),
		applogger.Bool("stream", a.cfg.Stream.Enabled))
	return nil
}

// Shutdown stops intake first (HTTP, consumer, scheduler), then the stream,
// then closes infrastructure clients and finally the publisher.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	a.log.Info("shutting down")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.log.Warn("scheduler stop error", applogger.Error(err))
		}
	}
	if a.book != nil {
		if err := a.book.Shutdown(ctx); err != nil {
			a.log.Warn("ticker stream stop error", applogger.Error(err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
