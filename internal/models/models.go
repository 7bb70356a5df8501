package models

import "time"

// Column widths of the weather table.
const (
	WindDirectionWidth     = 2
	PrecipitationTypeWidth = 10
)

// Observation is one stored snapshot of current conditions.
type Observation struct {
	ID                  int64
	Temperature         float64 // °C
	WindDirection       string  // VARCHAR(2); the API reports degrees, see DESIGN.md
	WindSpeed           float64 // m/s
	Pressure            float64 // mmHg
	PrecipitationType   string  // weather[0].main, e.g. "Rain", "Clear"
	PrecipitationAmount float64 // mm over the last hour, rain + snow
	CreatedAt           time.Time
}

// Columns lists the exported column names in order.
var Columns = []string{
	"id",
	"temperature",
	"wind_direction",
	"wind_speed",
	"pressure",
	"precipitation_type",
	"precipitation_amount",
	"created_at",
}
