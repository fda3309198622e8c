// Package pg connects to PostgreSQL with pgx/v5 and applies goose
// migrations.
//
//	pool, err := pg.Connect(ctx, cfg, log)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.MigrateFS(ctx, pool, migrations, "migrations", cfg.MigrationsTable, log); err != nil {
//	    return err
//	}
//
// Migrations run through a goose Provider, so several schemas can be
// migrated from one process without sharing goose's global state.
package pg
