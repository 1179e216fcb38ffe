//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"context"

	"github.com/google/wire"

	"github.com/zeusync/viewcone/internal/config"
	"github.com/zeusync/viewcone/internal/query"
	"github.com/zeusync/viewcone/internal/server"
)

// InitializeServer builds the server with its logger, store and query service.
func InitializeServer(ctx context.Context, cfg config.Config) (*server.Server, func(), error) {
	wire.Build(
		ProviderSet,
		query.NewService,
		server.NewServer,
		wire.Bind(new(server.Querier), new(*query.Service)),
	)
	return nil, nil, nil
}
