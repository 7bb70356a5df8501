package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/weatherlog/internal/store"
)

const maxListLimit = 1000

// Server exposes health, metrics and read-only JSON views of the store.
type Server struct {
	store        *store.Store
	addr         string
	pollInterval time.Duration
	defaultLimit int
	logger       *slog.Logger
	now          func() time.Time
}

func NewServer(st *store.Store, addr string, pollInterval time.Duration, defaultLimit int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:        st,
		addr:         addr,
		pollInterval: pollInterval,
		defaultLimit: defaultLimit,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/observations", s.handleAPIObservations)
	mux.HandleFunc("GET /api/ingest-errors", s.handleAPIIngestErrors)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("ops server listening", "addr", s.addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type HealthStatus struct {
	Status       string     `json:"status"`
	Observations int64      `json:"observations"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	AgeSeconds   int64      `json:"age_seconds"`
	Stale        bool       `json:"stale"`
	Error        string     `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.store.CountObservations(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, HealthStatus{Status: "error", Error: err.Error()})
		return
	}
	latest, err := s.store.LatestObservation(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, HealthStatus{Status: "error", Error: err.Error()})
		return
	}

	health := HealthStatus{Status: "ok", Observations: count, AgeSeconds: -1}
	if latest == nil {
		health.Stale = true
	} else {
		age := s.now().Sub(latest.CreatedAt)
		health.LastSeen = &latest.CreatedAt
		health.AgeSeconds = int64(age.Seconds())
		health.Stale = age > 3*s.pollInterval
	}
	if health.Stale {
		health.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, health)
}

type ObservationJSON struct {
	ID                  int64     `json:"id"`
	Temperature         float64   `json:"temperature"`
	WindDirection       string    `json:"wind_direction"`
	WindSpeed           float64   `json:"wind_speed"`
	Pressure            float64   `json:"pressure"`
	PrecipitationType   string    `json:"precipitation_type"`
	PrecipitationAmount float64   `json:"precipitation_amount"`
	CreatedAt           time.Time `json:"created_at"`
}

func (s *Server) handleAPIObservations(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	rows, err := s.store.RecentObservations(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent observations", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]ObservationJSON, 0, len(rows))
	for _, obs := range rows {
		out = append(out, ObservationJSON{
			ID:                  obs.ID,
			Temperature:         obs.Temperature,
			WindDirection:       obs.WindDirection,
			WindSpeed:           obs.WindSpeed,
			Pressure:            obs.Pressure,
			PrecipitationType:   obs.PrecipitationType,
			PrecipitationAmount: obs.PrecipitationAmount,
			CreatedAt:           obs.CreatedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type IngestErrorJSON struct {
	CycleID    string    `json:"cycle_id"`
	Endpoint   string    `json:"endpoint"`
	StartedAt  time.Time `json:"started_at"`
	HTTPStatus *int64    `json:"http_status,omitempty"`
	Error      string    `json:"error"`
}

func (s *Server) handleAPIIngestErrors(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	runs, err := s.store.RecentIngestErrors(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent ingest errors", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]IngestErrorJSON, 0, len(runs))
	for _, run := range runs {
		e := IngestErrorJSON{
			CycleID:   run.CycleID,
			Endpoint:  run.Endpoint,
			StartedAt: run.StartedAt.UTC(),
			Error:     run.ErrorMessage.String,
		}
		if run.HTTPStatus.Valid {
			status := run.HTTPStatus.Int64
			e.HTTPStatus = &status
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return s.defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(limit, maxListLimit), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
