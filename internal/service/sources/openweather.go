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

const openWeatherDefaultURL = "https://api.openweathermap.org/data/2.5/weather"

// OpenWeather polls the OpenWeatherMap current weather API.
type OpenWeather struct {
	baseURL   string
	apiKey    string
	locations []config.LocationConfig
	client    *pkghttp.Client
	gate      *Gate
	log       *logger.Logger
}

// NewOpenWeather creates the OpenWeatherMap connector.
func NewOpenWeather(cfg config.ProviderConfig, locations []config.LocationConfig, client *pkghttp.Client, gate *Gate, log *logger.Logger) *OpenWeather {
	base := cfg.BaseURL
	if base == "" {
		base = openWeatherDefaultURL
	}
	return &OpenWeather{baseURL: base, apiKey: cfg.APIKey, locations: locations, client: client, gate: gate, log: log}
}

func (p *OpenWeather) Name() string { return "openweather" }

type openWeatherPayload struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		TempMin  float64 `json:"temp_min"`
		TempMax  float64 `json:"temp_max"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Rain struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"rain"`
	Weather []struct {
		ID          int32  `json:"id"`
		Description string `json:"description"`
	} `json:"weather"`
}

func (p *OpenWeather) Fetch(ctx context.Context) ([]models.WeatherObservation, int, error) {
	if p.apiKey == "" {
		return nil, 0, fmt.Errorf("openweather api key is not configured")
	}
	var out []models.WeatherObservation
	dropped := 0
	for _, loc := range p.locations {
		var raw []byte
		err := p.gate.Do(ctx, func(ctx context.Context) error {
			return p.client.SendAndParse(ctx, &pkghttp.RequestOptions{
				Method: pkghttp.MethodGet,
				URL:    p.baseURL,
				QueryParams: map[string][]string{
					"lat":   {fmt.Sprintf("%f", loc.Latitude)},
					"lon":   {fmt.Sprintf("%f", loc.Longitude)},
					"appid": {p.apiKey},
					"units": {"metric"},
				},
			}, &raw)
		})
		if err != nil {
			return out, dropped, fmt.Errorf("openweather %s: %w", loc.Name, err)
		}

		obs, ok := p.normalize(loc, raw)
		if !ok {
			dropped++
			p.log.Warn("openweather record dropped", logger.String("location", loc.Name))
			continue
		}
		out = append(out, obs)
	}
	return out, dropped, nil
}

func (p *OpenWeather) normalize(loc config.LocationConfig, raw []byte) (models.WeatherObservation, bool) {
	var payload openWeatherPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.WeatherObservation{}, false
	}
	if payload.Dt == 0 {
		return models.WeatherObservation{}, false
	}

	precip := payload.Rain.OneH
	if precip == 0 {
		precip = payload.Rain.ThreeH
	}
	var code int32
	var desc string
	if len(payload.Weather) > 0 {
		code = payload.Weather[0].ID
		desc = payload.Weather[0].Description
	}

	obs := models.WeatherObservation{
		Timestamp:     time.Unix(payload.Dt, 0).UTC(),
		LocationName:  loc.Name,
		Latitude:      loc.Latitude,
		Longitude:     loc.Longitude,
		Temperature:   payload.Main.Temp,
		TempMin:       payload.Main.TempMin,
		TempMax:       payload.Main.TempMax,
		Humidity:      payload.Main.Humidity,
		WindSpeed:     payload.Wind.Speed,
		WindDirection: payload.Wind.Deg,
		Precipitation: precip,
		Pressure:      payload.Main.Pressure,
		WeatherCode:   code,
		Description:   desc,
		RawData:       string(raw),
	}
	if !validObservation(obs) {
		return models.WeatherObservation{}, false
	}
	return obs, true
}
