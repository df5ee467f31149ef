package models

import "time"

// WeatherObservation is a normalized reading from one weather provider.
// Fields mirror the weather_data table; immutable once persisted.
type WeatherObservation struct {
	Timestamp     time.Time `json:"timestamp"`
	LocationName  string    `json:"location_name"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Temperature   float64   `json:"temperature"`
	TempMin       float64   `json:"temperature_min"`
	TempMax       float64   `json:"temperature_max"`
	Humidity      float64   `json:"humidity"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection float64   `json:"wind_direction"`
	Precipitation float64   `json:"precipitation"`
	Pressure      float64   `json:"pressure"`
	WeatherCode   int32     `json:"weather_code"`
	Description   string    `json:"weather_description"`

	// RawData keeps the provider payload verbatim for later reprocessing.
	RawData string `json:"raw_data,omitempty"`
}

// Numeric weather fields the aligner can extract as a series.
const (
	FieldTemperature   = "temperature"
	FieldHumidity      = "humidity"
	FieldWindSpeed     = "wind_speed"
	FieldPrecipitation = "precipitation"
	FieldPressure      = "pressure"
)
