package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQLite      []string
	Postgres    []string
}

func (m migration) statements(d Dialect) []string {
	if d == Postgres {
		return m.Postgres
	}
	return m.SQLite
}

// wind_direction is VARCHAR(2) even though the API reports degrees (up to
// three digits). SQLite does not enforce the width; Postgres rejects wider
// values.
var migrations = []migration{
	{
		Version:     1,
		Description: "Weather observations",
		SQLite: []string{`
CREATE TABLE IF NOT EXISTS weather (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    temperature REAL,
    wind_direction VARCHAR(2),
    wind_speed REAL,
    pressure REAL,
    precipitation_type VARCHAR(10),
    precipitation_amount REAL,
    created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
)`,
			`CREATE INDEX IF NOT EXISTS idx_weather_created_at ON weather(created_at)`,
		},
		Postgres: []string{`
CREATE TABLE IF NOT EXISTS weather (
    id BIGSERIAL PRIMARY KEY,
    temperature DOUBLE PRECISION,
    wind_direction VARCHAR(2),
    wind_speed DOUBLE PRECISION,
    pressure DOUBLE PRECISION,
    precipitation_type VARCHAR(10),
    precipitation_amount DOUBLE PRECISION,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
			`CREATE INDEX IF NOT EXISTS idx_weather_created_at ON weather(created_at)`,
		},
	},
	{
		Version:     2,
		Description: "Ingest run audit",
		SQLite: []string{`
CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    http_status INTEGER,
    response_size_bytes INTEGER,
    observation_id INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
)`,
			`CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at)`,
		},
		Postgres: []string{`
CREATE TABLE IF NOT EXISTS ingest_runs (
    id BIGSERIAL PRIMARY KEY,
    cycle_id TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    http_status INTEGER,
    response_size_bytes BIGINT,
    observation_id BIGINT,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
)`,
			`CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at)`,
		},
	},
}

// Migrate creates any missing tables. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return storageErr("ensure migrations table", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return storageErr("get applied migrations", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		s.logger.Info("applying migration", "version", m.Version, "description", m.Description)

		if err := s.applyMigration(ctx, m); err != nil {
			return storageErr(fmt.Sprintf("migration %d", m.Version), err)
		}
	}

	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	for _, stmt := range m.statements(s.dialect) {
		if _, err := tx.ExecContext(ctx, s.bind(stmt)); err != nil {
			return fmt.Errorf("execute: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, s.bind(
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)"),
		m.Version, m.Description, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.bind(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at TIMESTAMP
		)
	`))
	return err
}

func (s *Store) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, s.bind("SELECT version FROM schema_migrations"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, s.bind("SELECT MAX(version) FROM schema_migrations")).Scan(&version); err != nil {
		return 0, storageErr("migration version", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
