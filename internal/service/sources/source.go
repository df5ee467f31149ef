package sources

import (
	"context"

	"StormFlow/internal/domain/models"
)

// WeatherSource pulls one batch of observations covering every
// configured location. The second return value counts records the
// provider returned but the connector had to drop as malformed.
type WeatherSource interface {
	Name() string
	Fetch(ctx context.Context) ([]models.WeatherObservation, int, error)
}

// QuoteSource pulls one batch of market quotes for every configured
// market.
type QuoteSource interface {
	Name() string
	Fetch(ctx context.Context) ([]models.MarketQuote, int, error)
}

// QuoteStream is a live quote feed with explicit reconnect handling.
type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.MarketQuote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
}

// validObservation rejects records with impossible readings so one bad
// upstream row never poisons the stored series.
func validObservation(o models.WeatherObservation) bool {
	if o.Timestamp.IsZero() || o.LocationName == "" {
		return false
	}
	if o.Temperature < -95 || o.Temperature > 65 {
		return false
	}
	if o.Humidity < 0 || o.Humidity > 100 {
		return false
	}
	if o.WindSpeed < 0 || o.Precipitation < 0 {
		return false
	}
	return true
}

// validQuote rejects quotes outside the probability unit interval.
func validQuote(q models.MarketQuote) bool {
	if q.Timestamp.IsZero() || q.MarketID == "" {
		return false
	}
	if q.Probability < 0 || q.Probability > 1 {
		return false
	}
	if q.Volume < 0 {
		return false
	}
	return true
}
