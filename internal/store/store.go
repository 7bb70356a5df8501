package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lox/weatherlog/internal/models"
)

// StorageError is returned for any failed insert or query.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dialect: dialect, logger: logger}
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// bind rewrites ? placeholders for the active dialect and echoes the
// statement at debug level.
func (s *Store) bind(query string, args ...any) string {
	if s.dialect == Postgres {
		var b strings.Builder
		n := 0
		for _, r := range query {
			if r == '?' {
				n++
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
				continue
			}
			b.WriteRune(r)
		}
		query = b.String()
	}
	if s.logger.Enabled(context.Background(), slog.LevelDebug) {
		s.logger.Debug("sql", "query", strings.Join(strings.Fields(query), " "), "args", args)
	}
	return query
}

const observationColumns = `id, temperature, wind_direction, wind_speed, pressure, precipitation_type, precipitation_amount, created_at`

func scanObservation(sc interface{ Scan(...any) error }) (models.Observation, error) {
	var obs models.Observation
	err := sc.Scan(&obs.ID, &obs.Temperature, &obs.WindDirection, &obs.WindSpeed, &obs.Pressure,
		&obs.PrecipitationType, &obs.PrecipitationAmount, &obs.CreatedAt)
	return obs, err
}

// AppendObservation inserts obs and returns the persisted row. ID and
// CreatedAt on the argument are ignored; the database assigns both.
func (s *Store) AppendObservation(ctx context.Context, obs models.Observation) (*models.Observation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("append observation: begin", err)
	}
	defer tx.Rollback() // no-op once committed

	var id int64
	insert := s.bind(`
		INSERT INTO weather (temperature, wind_direction, wind_speed, pressure, precipitation_type, precipitation_amount)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, obs.Temperature, obs.WindDirection, obs.WindSpeed, obs.Pressure, obs.PrecipitationType, obs.PrecipitationAmount)
	if err := tx.QueryRowContext(ctx, insert,
		obs.Temperature, obs.WindDirection, obs.WindSpeed, obs.Pressure, obs.PrecipitationType, obs.PrecipitationAmount,
	).Scan(&id); err != nil {
		return nil, storageErr("append observation: insert", err)
	}

	stored, err := s.observationByID(ctx, tx, id)
	if err != nil {
		return nil, storageErr("append observation: read back", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("append observation: commit", err)
	}
	return stored, nil
}

func (s *Store) observationByID(ctx context.Context, q queryer, id int64) (*models.Observation, error) {
	row := q.QueryRowContext(ctx, s.bind(`SELECT `+observationColumns+` FROM weather WHERE id = ?`, id), id)
	obs, err := scanObservation(row)
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// RecentObservations returns up to limit rows, newest first.
func (s *Store) RecentObservations(ctx context.Context, limit int) ([]models.Observation, error) {
	if limit <= 0 {
		return []models.Observation{}, nil
	}

	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT `+observationColumns+`
		FROM weather
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit), limit)
	if err != nil {
		return nil, storageErr("recent observations", err)
	}
	defer rows.Close()

	observations := make([]models.Observation, 0, limit)
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, storageErr("recent observations: scan", err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recent observations", err)
	}
	return observations, nil
}

// LatestObservation returns the newest row, or nil when the table is empty.
func (s *Store) LatestObservation(ctx context.Context) (*models.Observation, error) {
	obs, err := s.RecentObservations(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, nil
	}
	return &obs[0], nil
}

func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM weather`)).Scan(&n); err != nil {
		return 0, storageErr("count observations", err)
	}
	return n, nil
}
