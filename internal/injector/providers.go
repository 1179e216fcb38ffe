package injector

import (
	"context"

	"github.com/google/wire"

	"github.com/zeusync/viewcone/internal/config"
	"github.com/zeusync/viewcone/internal/core/observability/log"
	"github.com/zeusync/viewcone/internal/core/storage"
	"github.com/zeusync/viewcone/internal/query"
)

// ProviderSet wires the ambient dependencies of the server.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideStore,
	ProvideQueryConfig,
	wire.Bind(new(log.Log), new(*log.Logger)),
)

// ProvideLogger builds the root logger. The cleanup flushes buffered entries.
func ProvideLogger(cfg config.Config) (*log.Logger, func()) {
	logger := log.New(cfg.Log)
	return logger, func() { _ = logger.Sync() }
}

// ProvideStore opens and seeds the configured object store.
func ProvideStore(ctx context.Context, cfg config.Config, logger log.Log) (storage.Store, func(), error) {
	store, err := storage.New(ctx, cfg.Store.Options)
	if err != nil {
		logger.Error("Failed to open object store",
			log.String("driver", cfg.Store.Driver),
			log.Error(err))
		return nil, nil, err
	}
	logger.Info("Object store ready",
		log.String("driver", cfg.Store.Driver),
		log.String("seed_file", cfg.Store.SeedFile))
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close object store", log.Error(err))
		}
	}, nil
}

func ProvideQueryConfig(cfg config.Config) query.Config {
	return query.Config{
		QueryTimeout: cfg.Store.QueryTimeout,
		Filter:       cfg.Visibility.Options(),
	}
}
