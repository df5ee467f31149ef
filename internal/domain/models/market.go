package models

import "time"

// MarketQuote is one scraped outcome probability from the prediction market.
// Fields mirror the polymarket_data table; immutable once persisted.
type MarketQuote struct {
	Timestamp   time.Time `json:"timestamp"`
	ScrapedAt   time.Time `json:"scraped_at"`
	EventTitle  string    `json:"event_title"`
	MarketID    string    `json:"market_id"`
	OutcomeName string    `json:"outcome_name"`
	Probability float64   `json:"probability"`
	Volume      float64   `json:"volume"`
}

// Numeric quote fields the aligner can extract as a series.
const (
	FieldProbability = "probability"
	FieldVolume      = "volume"
)
