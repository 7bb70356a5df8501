package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/lox/weatherlog/internal/config"
	"github.com/lox/weatherlog/internal/metrics"
	"github.com/lox/weatherlog/internal/models"
	"github.com/lox/weatherlog/internal/store"
)

const SheetName = "Sheet1"

// ExportError is returned when the recent rows cannot be read or the
// workbook cannot be built or written.
type ExportError struct {
	Destination string
	Err         error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Destination, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

type Exporter struct {
	store  *store.Store
	limit  int
	logger *slog.Logger
}

// New returns an exporter writing the newest limit rows. A non-positive
// limit falls back to config.DefaultExportLimit.
func New(st *store.Store, limit int, logger *slog.Logger) *Exporter {
	if limit <= 0 {
		limit = config.DefaultExportLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: st, limit: limit, logger: logger}
}

// Export overwrites destination with the newest rows, newest first.
func (e *Exporter) Export(ctx context.Context, destination string) error {
	dest, err := ParseDestination(destination)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues(metrics.StatusError).Inc()
		return &ExportError{Destination: destination, Err: err}
	}
	if err := e.export(ctx, dest); err != nil {
		metrics.ExportsTotal.WithLabelValues(metrics.StatusError).Inc()
		return &ExportError{Destination: dest.String(), Err: err}
	}
	metrics.ExportsTotal.WithLabelValues(metrics.StatusOK).Inc()
	return nil
}

func (e *Exporter) export(ctx context.Context, dest Destination) error {
	rows, err := e.store.RecentObservations(ctx, e.limit)
	if err != nil {
		return err
	}

	f, err := Workbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("serialize workbook: %w", err)
	}
	size := buf.Len()

	if err := dest.Write(ctx, bytes.NewReader(buf.Bytes())); err != nil {
		return err
	}

	e.logger.Info("observations exported", "destination", dest.String(), "rows", len(rows), "bytes", size)
	return nil
}

// Workbook lays rows out on a single sheet under a header of column names.
// The caller closes the returned file.
func Workbook(rows []models.Observation) (*excelize.File, error) {
	f := excelize.NewFile()

	header := make([]any, len(models.Columns))
	for i, c := range models.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, obs := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		values := []any{
			obs.ID,
			obs.Temperature,
			obs.WindDirection,
			obs.WindSpeed,
			obs.Pressure,
			obs.PrecipitationType,
			obs.PrecipitationAmount,
			obs.CreatedAt.UTC(),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", obs.ID, err)
		}
	}

	return f, nil
}
