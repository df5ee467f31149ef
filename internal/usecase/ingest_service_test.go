package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StormFlow/internal/domain/models"
	"StormFlow/internal/service/sources"
	"StormFlow/pkg/logger"
)

type scriptedWeatherSource struct {
	name    string
	obs     []models.WeatherObservation
	dropped int
	err     error
}

func (s *scriptedWeatherSource) Name() string { return s.name }

func (s *scriptedWeatherSource) Fetch(context.Context) ([]models.WeatherObservation, int, error) {
	return s.obs, s.dropped, s.err
}

type scriptedQuoteSource struct {
	name   string
	quotes []models.MarketQuote
	err    error
}

func (s *scriptedQuoteSource) Name() string { return s.name }

func (s *scriptedQuoteSource) Fetch(context.Context) ([]models.MarketQuote, int, error) {
	return s.quotes, 0, s.err
}

func someObservation(loc string) models.WeatherObservation {
	return models.WeatherObservation{
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LocationName: loc,
		Temperature:  12.5,
		Humidity:     70,
	}
}

func someQuote(market string) models.MarketQuote {
	return models.MarketQuote{
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		MarketID:    market,
		OutcomeName: "Yes",
		Probability: 0.5,
	}
}

func TestRunCycleStoresAllSources(t *testing.T) {
	obsStore := &fakeObservationStore{}
	quoteStore := &fakeQuoteStore{}
	m := newFakeMetrics()

	svc := NewIngestService(
		[]sources.WeatherSource{
			&scriptedWeatherSource{name: "openmeteo", obs: []models.WeatherObservation{someObservation("warsaw"), someObservation("krakow")}},
			&scriptedWeatherSource{name: "openweather", obs: []models.WeatherObservation{someObservation("warsaw")}, dropped: 1},
		},
		[]sources.QuoteSource{
			&scriptedQuoteSource{name: "polymarket", quotes: []models.MarketQuote{someQuote("512")}},
		},
		nil,
		Sinks{Observations: obsStore, Quotes: quoteStore},
		m, logger.Nop(),
		IngestConfig{CycleTimeout: time.Second},
	)

	svc.RunCycle(context.Background())

	assert.Len(t, obsStore.stored, 3)
	assert.Len(t, quoteStore.stored, 1)
	assert.Equal(t, 2, m.ingested["openmeteo"])
	assert.Equal(t, 1, m.ingested["openweather"])
	assert.Equal(t, 1, m.ingested["polymarket"])
	assert.Equal(t, 1, m.dropped["openweather"])
	assert.Empty(t, m.errors)
}

func TestRunCycleIsolatesSourceFailures(t *testing.T) {
	obsStore := &fakeObservationStore{}
	quoteStore := &fakeQuoteStore{}
	m := newFakeMetrics()

	svc := NewIngestService(
		[]sources.WeatherSource{
			&scriptedWeatherSource{name: "broken", err: errors.New("upstream down")},
			&scriptedWeatherSource{name: "healthy", obs: []models.WeatherObservation{someObservation("warsaw")}},
		},
		nil, nil,
		Sinks{Observations: obsStore, Quotes: quoteStore},
		m, logger.Nop(),
		IngestConfig{CycleTimeout: time.Second},
	)

	svc.RunCycle(context.Background())

	assert.Len(t, obsStore.stored, 1, "the healthy source still lands")
	assert.Equal(t, 1, m.errors["fetch"])
	assert.Equal(t, 1, m.ingested["healthy"])
}

type fakePublisher struct {
	obs    []models.WeatherObservation
	quotes []models.MarketQuote
}

func (p *fakePublisher) PublishObservations(_ context.Context, obs []models.WeatherObservation) error {
	p.obs = append(p.obs, obs...)
	return nil
}

func (p *fakePublisher) PublishQuotes(_ context.Context, quotes []models.MarketQuote) error {
	p.quotes = append(p.quotes, quotes...)
	return nil
}

func TestRunCyclePrefersPublisherBackend(t *testing.T) {
	pub := &fakePublisher{}
	m := newFakeMetrics()

	svc := NewIngestService(
		[]sources.WeatherSource{&scriptedWeatherSource{name: "openmeteo", obs: []models.WeatherObservation{someObservation("warsaw")}}},
		[]sources.QuoteSource{&scriptedQuoteSource{name: "polymarket", quotes: []models.MarketQuote{someQuote("512")}}},
		nil,
		Sinks{Publisher: pub},
		m, logger.Nop(),
		IngestConfig{CycleTimeout: time.Second},
	)

	svc.RunCycle(context.Background())

	require.Len(t, pub.obs, 1)
	require.Len(t, pub.quotes, 1)
}
