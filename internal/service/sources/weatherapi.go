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

const weatherAPIDefaultURL = "https://api.weatherapi.com/v1/current.json"

// WeatherAPI polls the WeatherAPI.com current conditions endpoint.
type WeatherAPI struct {
	baseURL   string
	apiKey    string
	locations []config.LocationConfig
	client    *pkghttp.Client
	gate      *Gate
	log       *logger.Logger
}

// NewWeatherAPI creates the WeatherAPI.com connector.
func NewWeatherAPI(cfg config.ProviderConfig, locations []config.LocationConfig, client *pkghttp.Client, gate *Gate, log *logger.Logger) *WeatherAPI {
	base := cfg.BaseURL
	if base == "" {
		base = weatherAPIDefaultURL
	}
	return &WeatherAPI{baseURL: base, apiKey: cfg.APIKey, locations: locations, client: client, gate: gate, log: log}
}

func (p *WeatherAPI) Name() string { return "weatherapi" }

type weatherAPIPayload struct {
	Current struct {
		LastUpdatedEpoch int64   `json:"last_updated_epoch"`
		TempC            float64 `json:"temp_c"`
		Humidity         float64 `json:"humidity"`
		WindKph          float64 `json:"wind_kph"`
		WindDegree       float64 `json:"wind_degree"`
		PressureMb       float64 `json:"pressure_mb"`
		PrecipMm         float64 `json:"precip_mm"`
		Condition        struct {
			Text string `json:"text"`
			Code int32  `json:"code"`
		} `json:"condition"`
	} `json:"current"`
}

func (p *WeatherAPI) Fetch(ctx context.Context) ([]models.WeatherObservation, int, error) {
	if p.apiKey == "" {
		return nil, 0, fmt.Errorf("weatherapi api key is not configured")
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
					"key": {p.apiKey},
					"q":   {fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude)},
				},
			}, &raw)
		})
		if err != nil {
			return out, dropped, fmt.Errorf("weatherapi %s: %w", loc.Name, err)
		}

		obs, ok := p.normalize(loc, raw)
		if !ok {
			dropped++
			p.log.Warn("weatherapi record dropped", logger.String("location", loc.Name))
			continue
		}
		out = append(out, obs)
	}
	return out, dropped, nil
}

func (p *WeatherAPI) normalize(loc config.LocationConfig, raw []byte) (models.WeatherObservation, bool) {
	var payload weatherAPIPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.WeatherObservation{}, false
	}
	if payload.Current.LastUpdatedEpoch == 0 {
		return models.WeatherObservation{}, false
	}

	obs := models.WeatherObservation{
		Timestamp:     time.Unix(payload.Current.LastUpdatedEpoch, 0).UTC(),
		LocationName:  loc.Name,
		Latitude:      loc.Latitude,
		Longitude:     loc.Longitude,
		Temperature:   payload.Current.TempC,
		TempMin:       payload.Current.TempC,
		TempMax:       payload.Current.TempC,
		Humidity:      payload.Current.Humidity,
		WindSpeed:     payload.Current.WindKph / 3.6,
		WindDirection: payload.Current.WindDegree,
		Precipitation: payload.Current.PrecipMm,
		Pressure:      payload.Current.PressureMb,
		WeatherCode:   payload.Current.Condition.Code,
		Description:   payload.Current.Condition.Text,
		RawData:       string(raw),
	}
	if !validObservation(obs) {
		return models.WeatherObservation{}, false
	}
	return obs, true
}
