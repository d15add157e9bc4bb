package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Options selects and configures a repository implementation
type Options struct {
	Driver        string
	DSN           string
	MigrationsDir string
	MaxConns      int
	MinConns      int
}

// Open creates the repository for opts.Driver, applying migrations or schema as needed
func Open(ctx context.Context, opts Options) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverPostgres:
		slog.Info("running database migrations", "dir", opts.MigrationsDir)
		if err := MigrateFromDSN(ctx, opts.DSN, opts.MigrationsDir); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewPostgresRepository(ctx, PostgresConfig{
			DSN:          opts.DSN,
			MaxOpenConns: int32(opts.MaxConns),
			MaxIdleConns: int32(opts.MinConns),
		})
	case DriverSQLite:
		return NewSQLiteRepository(ctx, opts.DSN)
	case DriverMemory:
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}
}
