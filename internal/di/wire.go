//go:build wireinject
// +build wireinject

package di

import (
	"StormFlow/pkg/config"
	"StormFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideHTTPClient,
		ProvideLimiter,

		// Repositories
		ProvideObservationStore,
		ProvideQuoteStore,
		ProvideSinks,

		// Source connectors
		ProvideWeatherSources,
		ProvideQuoteSources,
		ProvideQuoteStream,

		// Use cases
		ProvideResultCache,
		ProvideBytesCache,
		ProvideIngestService,
		ProvideAnalysisService,

		// HTTP surface
		ProvideAnalysisHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
