package repository

import (
	"context"
	"time"

	"StormFlow/internal/domain/models"
)

// ObservationStore persists weather observations and serves range queries.
// Writes within the weather stream preserve arrival order.
type ObservationStore interface {
	StoreBatch(ctx context.Context, obs []models.WeatherObservation) error
	// Range returns one numeric field for a location as an ordered series.
	Range(ctx context.Context, location, field string, from, to time.Time) (models.Series, error)
}

// QuoteStore persists market quotes and serves range queries.
type QuoteStore interface {
	StoreBatch(ctx context.Context, quotes []models.MarketQuote) error
	// Range returns one numeric field for a market outcome as an ordered series.
	Range(ctx context.Context, marketID, outcome, field string, from, to time.Time) (models.Series, error)
}

// Publisher forwards normalized records to a message backend for downstream
// consumers that do not read ClickHouse directly.
type Publisher interface {
	PublishObservations(ctx context.Context, obs []models.WeatherObservation) error
	PublishQuotes(ctx context.Context, quotes []models.MarketQuote) error
}

// Metrics abstracts the Prometheus recorder so usecases stay testable.
type Metrics interface {
	RecordIngested(source string, n int)
	RecordDropped(source string, n int)
	RecordError(kind string)
	RecordRateLimitDenied(policy string)
	RecordLatency(op string, seconds float64)
	RecordCacheHit(hit bool)
}
