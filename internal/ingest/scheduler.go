package ingest

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lox/weatherlog/internal/export"
	"github.com/lox/weatherlog/internal/metrics"
	"github.com/lox/weatherlog/internal/store"
)

// Scheduler runs fetch, append and optional export cycles one at a time,
// sleeping a fixed interval after each.
type Scheduler struct {
	store    *store.Store
	weather  *OpenWeather
	exporter *export.Exporter
	exportTo string
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(st *store.Store, weather *OpenWeather, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    st,
		weather:  weather,
		interval: interval,
		logger:   logger,
	}
}

// SetExporter makes every successful cycle overwrite destination with the
// newest observations.
func (s *Scheduler) SetExporter(exp *export.Exporter, destination string) {
	s.exporter = exp
	s.exportTo = destination
}

// Run executes the first cycle immediately and then one cycle per interval
// until ctx is cancelled. Storage and export failures end the loop and are
// returned; fetch failures only skip the current cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting", "interval", s.interval, "export", s.exportTo != "")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case <-timer.C:
		}

		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scheduler shutting down", "err", err)
				return nil
			}
			return err
		}
		timer.Reset(s.interval)
	}
}

// RunCycle performs exactly one fetch, append and optional export.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	logger := s.logger.With("cycle", cycleID)

	run, err := s.store.StartIngestRun(ctx, cycleID, s.weather.Endpoint())
	if err != nil {
		return err
	}

	// The audit row is closed even if ctx is cancelled mid-cycle.
	auditCtx := context.WithoutCancel(ctx)

	obs, result, err := s.weather.FetchCurrent(ctx)
	if result != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(result.HTTPStatus), Valid: result.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(result.ResponseSize), Valid: true}
		logger.Debug("weather response", "status", result.HTTPStatus, "body", result.Body)
	}

	if err != nil {
		var reqErr *RequestError
		var parseErr *ParseError
		switch {
		case errors.As(err, &reqErr):
			logger.Error("fetch failed, skipping cycle", "err", err, "status", reqErr.StatusCode)
		case errors.As(err, &parseErr):
			logger.Error("unexpected response, skipping cycle", "err", err, "field", parseErr.Field)
		default:
			logger.Error("fetch failed, skipping cycle", "err", err)
		}
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		return s.store.CompleteIngestRun(auditCtx, run)
	}

	stored, err := s.store.AppendObservation(ctx, *obs)
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		if cerr := s.store.CompleteIngestRun(auditCtx, run); cerr != nil {
			logger.Warn("complete ingest run", "err", cerr)
		}
		return err
	}

	metrics.ObservationsStored.Inc()
	metrics.LastObservationTemperature.Set(stored.Temperature)
	logger.Info("observation stored",
		"id", stored.ID,
		"temperature", stored.Temperature,
		"wind_direction", stored.WindDirection,
		"wind_speed", stored.WindSpeed,
		"pressure", stored.Pressure,
		"precipitation_type", stored.PrecipitationType,
		"precipitation_amount", stored.PrecipitationAmount,
	)

	run.Success = true
	run.ObservationID = sql.NullInt64{Int64: stored.ID, Valid: true}
	if err := s.store.CompleteIngestRun(auditCtx, run); err != nil {
		return err
	}

	if s.exporter == nil || s.exportTo == "" {
		return nil
	}
	return s.exporter.Export(ctx, s.exportTo)
}
