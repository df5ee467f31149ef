package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StormFlow/internal/domain/models"
	"StormFlow/internal/domain/repository"
)

// Numeric columns callers may select as a series; anything else is
// rejected before it reaches the query string.
var weatherFields = map[string]string{
	models.FieldTemperature:   "temperature",
	models.FieldHumidity:      "humidity",
	models.FieldWindSpeed:     "wind_speed",
	models.FieldPrecipitation: "precipitation",
	models.FieldPressure:      "pressure",
}

// ClickHouseWeatherStore implements ObservationStore on the
// weather_data table.
type ClickHouseWeatherStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseWeatherStore creates a weather observation store.
func NewClickHouseWeatherStore(db *sql.DB, table string) repository.ObservationStore {
	return &ClickHouseWeatherStore{db: db, table: table}
}

func (s *ClickHouseWeatherStore) StoreBatch(ctx context.Context, obs []models.WeatherObservation) error {
	if len(obs) == 0 {
		return nil
	}
	// Multi-row VALUES inserts to cut round-trips.
	const chunkSize = 2000
	for start := 0; start < len(obs); start += chunkSize {
		end := start + chunkSize
		if end > len(obs) {
			end = len(obs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*15)
		for _, o := range obs[start:end] {
			if o.LocationName == "" || o.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				o.Timestamp,
				o.LocationName,
				o.Latitude,
				o.Longitude,
				o.Temperature,
				o.TempMin,
				o.TempMax,
				o.Humidity,
				o.WindSpeed,
				o.WindDirection,
				o.Precipitation,
				o.Pressure,
				o.WeatherCode,
				o.Description,
				o.RawData,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (timestamp, location_name, latitude, longitude, temperature, temperature_min, temperature_max, humidity, wind_speed, wind_direction, precipitation, pressure, weather_code, weather_description, raw_data) VALUES %s",
			s.table, strings.Join(values, ","),
		)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("weather store batch: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseWeatherStore) Range(ctx context.Context, location, field string, from, to time.Time) (models.Series, error) {
	col, ok := weatherFields[field]
	if !ok {
		return models.Series{}, fmt.Errorf("unknown weather field %q", field)
	}

	q := fmt.Sprintf(
		"SELECT timestamp, %s FROM %s WHERE location_name = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC",
		col, s.table,
	)
	rows, err := s.db.QueryContext(ctx, q, location, from, to)
	if err != nil {
		return models.Series{}, fmt.Errorf("weather range query: %w", err)
	}
	defer rows.Close()

	series := models.Series{ID: seriesID("weather", location, field)}
	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.T, &p.V); err != nil {
			return models.Series{}, err
		}
		series.Points = append(series.Points, p)
	}
	return series, rows.Err()
}

func (s *ClickHouseWeatherStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func seriesID(parts ...string) string {
	return strings.Join(parts, ":")
}
