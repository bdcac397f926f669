package di

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"CryptoSignal/internal/domain/repository"
	"CryptoSignal/internal/handler/api"
	mid "CryptoSignal/internal/middleware"
	internalrepo "CryptoSignal/internal/repository"
	"CryptoSignal/internal/service/binance"
	"CryptoSignal/internal/service/cache"
	"CryptoSignal/internal/service/coingecko"
	"CryptoSignal/internal/service/cryptocompare"
	stagemetrics "CryptoSignal/internal/service/metrics"
	"CryptoSignal/internal/service/ratelimit"
	"CryptoSignal/internal/service/synthetic"
	"CryptoSignal/internal/services/indicators"
	"CryptoSignal/internal/services/reliability"
	"CryptoSignal/internal/services/risk"
	"CryptoSignal/internal/services/scoring"
	"CryptoSignal/internal/usecase"
	pkgcache "CryptoSignal/pkg/cache"
	"CryptoSignal/pkg/config"
	xhttp "CryptoSignal/pkg/http"
	pkgkafka "CryptoSignal/pkg/kafka"
	applogger "CryptoSignal/pkg/logger"
	"CryptoSignal/pkg/metrics"
	"CryptoSignal/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(cfg.Environment != "production"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. With a producer and the collector
// enabled, warn/error digests are shipped to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	log, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Service:        "cryptosignal",
			Publisher:      producer,
		})
	}
	return log, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	stagemetrics.Register()
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideRedis connects to Redis, or returns nil when it is disabled.
func ProvideRedis(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideTTLCache creates the market data cache, mirrored to Redis when present.
func ProvideTTLCache(rc *pkgcache.RedisCache, log *applogger.Logger) *cache.TTLCache {
	opts := []cache.Option{cache.WithLogger(log.Named("cache"))}
	if rc != nil {
		opts = append(opts, cache.WithRemote(rc))
	}
	return cache.NewTTLCache(opts...)
}

func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideProviders builds the upstream clients in fallback order. Disabled
// providers stay nil interfaces so the fetcher skips them.
func ProvideProviders(cfg *config.Config, limiter *ratelimit.Limiter, log *applogger.Logger) usecase.Providers {
	var p usecase.Providers
	if cfg.Providers.CoinGecko.Enabled {
		p.Primary = coingecko.NewClient(cfg, limiter, log)
	}
	if cfg.Providers.CryptoCompare.Enabled {
		c := cryptocompare.NewClient(cfg, limiter, log)
		if p.Primary == nil {
			p.Primary = c
		} else {
			p.Secondary = c
		}
	}
	return p
}

func ProvideSynthetic(cfg *config.Config) *synthetic.Generator {
	return synthetic.NewGenerator(cfg)
}

// ProvidePriceBook wires the ticker stream behind a tick filter. Nil when the
// stream is disabled.
func ProvidePriceBook(cfg *config.Config, m repository.Metrics, log *applogger.Logger) *usecase.PriceBook {
	if !cfg.Stream.Enabled {
		return nil
	}
	stream := binance.NewStream(cfg, log)
	filter := mid.NewTickFilter(m)
	return usecase.NewPriceBook(stream, filter, m, log)
}

func ProvideFetcher(cfg *config.Config, c *cache.TTLCache, p usecase.Providers, synth *synthetic.Generator, book *usecase.PriceBook, m repository.Metrics, log *applogger.Logger) *usecase.Fetcher {
	var opts []usecase.FetcherOption
	if book != nil {
		opts = append(opts, usecase.WithPriceBook(book))
	}
	return usecase.NewFetcher(cfg, c, p, synth, m, log, opts...)
}

func ProvideAnalyzers(cfg *config.Config) usecase.Analyzers {
	return usecase.Analyzers{
		Indicators:  indicators.NewEngine(cfg),
		Scorer:      scoring.NewScorer(cfg),
		Risk:        risk.NewCalculator(cfg),
		Reliability: reliability.NewScorer(),
	}
}

func ProvidePipeline(cfg *config.Config, f *usecase.Fetcher, an usecase.Analyzers, c *cache.TTLCache, m repository.Metrics, log *applogger.Logger) *usecase.Pipeline {
	return usecase.NewPipeline(cfg, f, an, c, m, log)
}

// ProvidePublisher sends bundles to Kafka and the log when Kafka is enabled,
// and to the log only otherwise.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer, m repository.Metrics, log *applogger.Logger) repository.Publisher {
	logPub := internalrepo.NewLogPublisher(log, m)
	if producer == nil {
		return logPub
	}
	return internalrepo.Fanout{internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic, m), logPub}
}

// ProvideConsumer creates the request consumer, or nil when Kafka is disabled.
func ProvideConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerWorkers(kc.Workers),
		pkgkafka.WithConsumerBufferSize(kc.BufferSize),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TracingHook(log.Named("kafka-trace"), cfg.Pipeline.Timeout/2)))
	return consumer, nil
}

func ProvideRequestHandler(cfg *config.Config, p *usecase.Pipeline, pub repository.Publisher, m repository.Metrics, log *applogger.Logger) *usecase.AnalysisRequestHandler {
	return usecase.NewAnalysisRequestHandler(cfg.Kafka.RequestTopic, p, pub, m, log)
}

// ProvideScheduler returns nil when scheduled refreshes are disabled.
func ProvideScheduler(cfg *config.Config, p *usecase.Pipeline, pub repository.Publisher, rc *pkgcache.RedisCache, m repository.Metrics, log *applogger.Logger) *usecase.Scheduler {
	if !cfg.Scheduler.Enabled {
		return nil
	}
	var locker usecase.Locker
	if rc != nil {
		locker = rc
	}
	return usecase.NewScheduler(cfg, p, pub, locker, m, log)
}

// ProvideHandler builds the HTTP API with health checks for the optional
// dependencies that are enabled.
func ProvideHandler(cfg *config.Config, log *applogger.Logger, p *usecase.Pipeline, f *usecase.Fetcher, limiter *ratelimit.Limiter, rc *pkgcache.RedisCache, book *usecase.PriceBook) *api.SignalsEchoHandler {
	checks := make(map[string]api.HealthCheck)
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}
	}
	if book != nil {
		checks["stream"] = func(context.Context) error {
			if !book.IsConnected() {
				return errors.New("ticker stream disconnected")
			}
			return nil
		}
	}
	return api.NewSignalsEchoHandler(cfg, log, p, f, limiter, checks)
}

func ProvideHTTPServer(cfg *config.Config, h *api.SignalsEchoHandler, log *applogger.Logger) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	return xhttp.NewServer(h, log,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

// collectorCloser flushes pending log digests while the producer is still open.
type collectorCloser struct{ log *applogger.Logger }

func (c collectorCloser) Close() error {
	c.log.RemoveCollector()
	return nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	srv *xhttp.Server,
	book *usecase.PriceBook,
	scheduler *usecase.Scheduler,
	consumer *pkgkafka.Consumer,
	handler *usecase.AnalysisRequestHandler,
	pub repository.Publisher,
	rc *pkgcache.RedisCache,
) *server.App {
	closers := []io.Closer{collectorCloser{log: log}}
	if rc != nil {
		closers = append(closers, rc)
	}
	return server.New(cfg, log, server.Components{
		HTTP:      srv,
		PriceBook: book,
		Scheduler: scheduler,
		Consumer:  consumer,
		Handler:   handler,
		Publisher: pub,
		Closers:   closers,
	})
}
