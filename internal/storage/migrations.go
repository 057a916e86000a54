package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Migration is one forward-only schema change shared by the SQL backends.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// Migrations returns every schema change in version order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create candles table",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS candles (
					symbol     VARCHAR NOT NULL,
					timeframe  VARCHAR NOT NULL,
					open_time  BIGINT NOT NULL,
					open       DOUBLE NOT NULL,
					high       DOUBLE NOT NULL,
					low        DOUBLE NOT NULL,
					close      DOUBLE NOT NULL,
					volume     DOUBLE NOT NULL CHECK (volume >= 0),
					PRIMARY KEY (symbol, timeframe, open_time)
				)`,
			},
		},
		{
			Version:     2,
			Description: "index candles by open time",
			Statements: []string{
				`CREATE INDEX IF NOT EXISTS idx_candles_open_time ON candles (open_time)`,
			},
		},
	}
}

// migrator applies pending migrations and records them in schema_migrations.
type migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

func (m *migrator) migrateToLatest(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			description VARCHAR NOT NULL,
			applied_at  BIGINT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if migration.Version <= current {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		m.logger.Info("applied migration", "version", migration.Version, "description", migration.Description)
	}
	return nil
}

func (m *migrator) currentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := m.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (m *migrator) apply(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range migration.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		migration.Version, migration.Description, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}
