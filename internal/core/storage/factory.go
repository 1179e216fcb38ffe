package storage

import (
	"context"
	"fmt"

	"github.com/zeusync/viewcone/internal/core/visibility"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	// SeedFile is loaded into the store on startup when set.
	SeedFile string `yaml:"seed_file"`
}

// New builds the configured store and loads the seed file, if any.
func New(ctx context.Context, opts Options) (Store, error) {
	var seed []visibility.SpatialObject
	if opts.SeedFile != "" {
		objects, err := LoadFile(opts.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("load seed: %w", err)
		}
		seed = objects
	}

	switch opts.Driver {
	case "", DriverMemory:
		store, err := NewMemory(seed...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverSQLite:
		store, err := ConnectSQLite(opts.DSN, opts.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		if err := store.ApplySchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		if len(seed) > 0 {
			if err := store.Import(ctx, seed); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%q: %w", opts.Driver, ErrUnknownStore)
	}
}
