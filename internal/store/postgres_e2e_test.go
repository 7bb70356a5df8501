//go:build e2e

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "weather",
			"POSTGRES_PASSWORD": "weather",
			"POSTGRES_DB":       "weather",
		},
		// The server logs readiness twice: once for the init run, once for real.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("postgres://weather:weather@%s:%s/weather?sslmode=disable", host, port.Port())
}

func TestPostgres_AppendAndRecent(t *testing.T) {
	dbURL := startPostgres(t)
	ctx := context.Background()

	st, err := Open(ctx, dbURL, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if st.Dialect() != Postgres {
		t.Fatalf("dialect = %s, want postgres", st.Dialect())
	}
	for i := 0; i < 2; i++ {
		if err := st.Migrate(ctx); err != nil {
			t.Fatalf("migrate (run %d): %v", i+1, err)
		}
	}

	var ids []int64
	for i := 0; i < 12; i++ {
		stored, err := st.AppendObservation(ctx, sampleObservation(float64(i)))
		if err != nil {
			t.Fatalf("AppendObservation: %v", err)
		}
		if stored.CreatedAt.IsZero() {
			t.Fatalf("created_at not assigned: %+v", stored)
		}
		ids = append(ids, stored.ID)
	}

	recent, err := st.RecentObservations(ctx, 10)
	if err != nil {
		t.Fatalf("RecentObservations: %v", err)
	}
	if len(recent) != 10 {
		t.Fatalf("len = %d, want 10", len(recent))
	}
	for i, obs := range recent {
		if want := ids[len(ids)-1-i]; obs.ID != want {
			t.Errorf("recent[%d].ID = %d, want %d", i, obs.ID, want)
		}
	}

	run, err := st.StartIngestRun(ctx, "cycle-pg", "data/2.5/weather")
	if err != nil {
		t.Fatalf("StartIngestRun: %v", err)
	}
	run.ErrorMessage.String, run.ErrorMessage.Valid = "status 500", true
	if err := st.CompleteIngestRun(ctx, run); err != nil {
		t.Fatalf("CompleteIngestRun: %v", err)
	}
	failed, err := st.RecentIngestErrors(ctx, 5)
	if err != nil {
		t.Fatalf("RecentIngestErrors: %v", err)
	}
	if len(failed) != 1 || failed[0].CycleID != "cycle-pg" {
		t.Errorf("failed runs = %+v", failed)
	}
}

func TestPostgres_WideWindDirectionRejected(t *testing.T) {
	st, err := Open(context.Background(), startPostgres(t), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	obs := sampleObservation(1)
	obs.WindDirection = "270"
	_, err = st.AppendObservation(context.Background(), obs)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StorageError", err)
	}
}
