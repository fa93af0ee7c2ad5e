package storage

import (
	"context"
	"fmt"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and locates the storage backend.
type Config struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `yaml:"dsn" validate:"required"`
}

// Open applies pending migrations and returns a ready backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		b, err := NewSQLiteBackend(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverPostgres:
		if err := RunMigrations(DriverPostgres, cfg.DSN); err != nil {
			return nil, err
		}
		b, err := NewPostgresBackend(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
