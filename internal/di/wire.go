//go:build wireinject
// +build wireinject

package di

import (
	"RigWatch/pkg/config"
	"RigWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgres,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Reference data
		ProvideThresholdStore,
		ProvideRuleStore,
		ProvideRefresher,

		// Detection chain
		ProvideDetectorPipeline,
		ProvideDedupStore,
		ProvideDeduplicator,
		ProvideNotifier,
		ProvideEscalationEngine,
		ProvideAlertLog,
		ProvideFanOut,
		ProvideHub,
		ProvideReadingProcessor,
		ProvideSensorLanes,
		ProvideReadingsHandler,

		// HTTP surface
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
