package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"
)

// Migrate applies all pending SQL migrations from migrationsFS in filename
// order. Each file runs in its own transaction and is recorded in
// schema_migrations; files already recorded are skipped.
func (d *DB) Migrate(ctx context.Context, migrationsFS fs.FS) error {
	_, err := d.sql.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.Glob(migrationsFS, "*.sql")
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}
	sort.Strings(entries)

	for _, filename := range entries {
		var count int
		err := d.queryRow(ctx, d.sql,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", filename,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", filename, err)
		}
		if count > 0 {
			slog.Debug("migration already applied, skipping", "version", filename)
			continue
		}

		body, err := fs.ReadFile(migrationsFS, filename)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", filename, err)
		}

		err = d.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("executing migration %s: %w", filename, err)
			}
			if _, err := d.exec(ctx, tx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				filename, millis(time.Now()),
			); err != nil {
				return fmt.Errorf("recording migration %s: %w", filename, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		slog.Info("migration applied", "version", filename)
	}

	return nil
}

// AppliedMigrations lists recorded migration versions in order.
func (d *DB) AppliedMigrations(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, "SELECT version FROM schema_migrations ORDER BY version")
}
