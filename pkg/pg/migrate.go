package pg

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// Migrate applies the migrations in cfg.MigrationsPath.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, log *slog.Logger) error {
	if cfg.MigrationsPath == "" {
		return fmt.Errorf("%w: PG_MIGRATIONS_PATH is empty", ErrMigrate)
	}
	if _, err := os.Stat(cfg.MigrationsPath); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	return MigrateFS(ctx, pool, os.DirFS(cfg.MigrationsPath), ".", cfg.MigrationsTable, log)
}

// MigrateFS applies the migrations found under dir in fsys, recording
// versions in table.
func MigrateFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir, table string, log *slog.Logger) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	if table == "" {
		table = "notifykit_migrations"
	}
	store, err := database.NewStore(database.DialectPostgres, table)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider("", db, sub, goose.WithStore(store))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	results, err := provider.Up(ctx)
	for _, r := range results {
		if r.Source == nil {
			continue
		}
		log.InfoContext(ctx, "migration applied",
			slog.Int64("version", r.Source.Version),
			slog.String("file", r.Source.Path),
			slog.Duration("took", r.Duration),
		)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	return nil
}
