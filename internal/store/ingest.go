package store

import (
	"context"
	"database/sql"
	"time"
)

// IngestRun records one fetch cycle for auditing.
type IngestRun struct {
	ID                int64
	CycleID           string
	Endpoint          string
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	ObservationID     sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

const completeIngestRunSQL = `
	UPDATE ingest_runs SET
		finished_at = ?,
		http_status = ?,
		response_size_bytes = ?,
		observation_id = ?,
		success = ?,
		error_message = ?
	WHERE id = ?
`

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(ctx context.Context, cycleID, endpoint string) (*IngestRun, error) {
	run := &IngestRun{
		CycleID:   cycleID,
		Endpoint:  endpoint,
		StartedAt: time.Now().UTC(),
	}

	query := s.bind(`
		INSERT INTO ingest_runs (cycle_id, endpoint, started_at, success)
		VALUES (?, ?, ?, FALSE)
		RETURNING id
	`, run.CycleID, run.Endpoint, run.StartedAt)
	if err := s.db.QueryRowContext(ctx, query, run.CycleID, run.Endpoint, run.StartedAt).Scan(&run.ID); err != nil {
		return nil, storageErr("start ingest run", err)
	}
	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, s.bind(completeIngestRunSQL), run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.ObservationID,
		run.Success, run.ErrorMessage, run.ID)
	return storageErr("complete ingest run", err)
}

// RecentIngestErrors returns recent failed ingest runs, newest first.
func (s *Store) RecentIngestErrors(ctx context.Context, limit int) ([]IngestRun, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT id, cycle_id, endpoint, started_at, finished_at, http_status,
			   response_size_bytes, observation_id, success, error_message
		FROM ingest_runs
		WHERE success = FALSE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, storageErr("recent ingest errors", err)
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.CycleID, &r.Endpoint, &r.StartedAt, &r.FinishedAt,
			&r.HTTPStatus, &r.ResponseSizeBytes, &r.ObservationID, &r.Success, &r.ErrorMessage); err != nil {
			return nil, storageErr("recent ingest errors: scan", err)
		}
		results = append(results, r)
	}
	return results, storageErr("recent ingest errors", rows.Err())
}
