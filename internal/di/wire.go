//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"CryptoSignal/pkg/config"
	"CryptoSignal/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedis,
		ProvideTTLCache,
		ProvideLimiter,

		// Market data
		ProvideProviders,
		ProvideSynthetic,
		ProvidePriceBook,
		ProvideFetcher,

		// Analysis
		ProvideAnalyzers,
		ProvidePipeline,
		ProvidePublisher,

		// Intake
		ProvideConsumer,
		ProvideRequestHandler,
		ProvideScheduler,
		ProvideHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
