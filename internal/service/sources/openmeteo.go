package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"StormFlow/internal/domain/models"
	"StormFlow/pkg/config"
	pkghttp "StormFlow/pkg/http"
	"StormFlow/pkg/logger"
)

const openMeteoDefaultURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteo polls the Open-Meteo forecast API. No API key required.
type OpenMeteo struct {
	baseURL   string
	locations []config.LocationConfig
	client    *pkghttp.Client
	gate      *Gate
	log       *logger.Logger
}

// NewOpenMeteo creates the Open-Meteo connector.
func NewOpenMeteo(cfg config.ProviderConfig, locations []config.LocationConfig, client *pkghttp.Client, gate *Gate, log *logger.Logger) *OpenMeteo {
	base := cfg.BaseURL
	if base == "" {
		base = openMeteoDefaultURL
	}
	return &OpenMeteo{baseURL: base, locations: locations, client: client, gate: gate, log: log}
}

func (p *OpenMeteo) Name() string { return "openmeteo" }

type openMeteoPayload struct {
	CurrentWeather struct {
		Temperature   float64 `json:"temperature"`
		WindSpeed     float64 `json:"windspeed"`
		WindDirection float64 `json:"winddirection"`
		WeatherCode   int32   `json:"weathercode"`
		Time          string  `json:"time"`
	} `json:"current_weather"`
}

func (p *OpenMeteo) Fetch(ctx context.Context) ([]models.WeatherObservation, int, error) {
	var out []models.WeatherObservation
	dropped := 0
	for _, loc := range p.locations {
		var raw []byte
		err := p.gate.Do(ctx, func(ctx context.Context) error {
			return p.client.SendAndParse(ctx, &pkghttp.RequestOptions{
				Method: pkghttp.MethodGet,
				URL:    p.baseURL,
				QueryParams: map[string][]string{
					"latitude":        {fmt.Sprintf("%f", loc.Latitude)},
					"longitude":       {fmt.Sprintf("%f", loc.Longitude)},
					"current_weather": {"true"},
				},
			}, &raw)
		})
		if err != nil {
			return out, dropped, fmt.Errorf("openmeteo %s: %w", loc.Name, err)
		}

		obs, ok := p.normalize(loc, raw)
		if !ok {
			dropped++
			p.log.Warn("openmeteo record dropped", logger.String("location", loc.Name))
			continue
		}
		out = append(out, obs)
	}
	return out, dropped, nil
}

func (p *OpenMeteo) normalize(loc config.LocationConfig, raw []byte) (models.WeatherObservation, bool) {
	var payload openMeteoPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.WeatherObservation{}, false
	}

	ts, err := time.Parse("2006-01-02T15:04", payload.CurrentWeather.Time)
	if err != nil {
		if ts, err = time.Parse(time.RFC3339, payload.CurrentWeather.Time); err != nil {
			return models.WeatherObservation{}, false
		}
	}

	obs := models.WeatherObservation{
		Timestamp:     ts.UTC(),
		LocationName:  loc.Name,
		Latitude:      loc.Latitude,
		Longitude:     loc.Longitude,
		Temperature:   payload.CurrentWeather.Temperature,
		TempMin:       payload.CurrentWeather.Temperature,
		TempMax:       payload.CurrentWeather.Temperature,
		WindSpeed:     payload.CurrentWeather.WindSpeed / 3.6, // km/h to m/s
		WindDirection: payload.CurrentWeather.WindDirection,
		WeatherCode:   payload.CurrentWeather.WeatherCode,
		Description:   describeWMOCode(payload.CurrentWeather.WeatherCode),
		RawData:       string(raw),
	}
	if !validObservation(obs) {
		return models.WeatherObservation{}, false
	}
	return obs, true
}

// describeWMOCode maps WMO weather interpretation codes to text.
func describeWMOCode(code int32) string {
	switch {
	case code == 0:
		return "clear sky"
	case code >= 1 && code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	}
	return "unknown"
}
