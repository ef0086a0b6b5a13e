//go:build wireinject
// +build wireinject

package di

import (
	"VolCast/pkg/config"
	"VolCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCacheService,

		// Repositories
		ProvideTickStorage,
		ProvideTickPublisher,
		ProvidePredictionSink,
		ProvideMarketStream,
		ProvideTickArchive,

		// Forecasting pipeline
		ProvideBundle,
		ProvideBarAggregator,
		ProvideForecaster,
		ProvideForecastHandler,

		// Live ingest
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideKafkaTicksHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
