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

var quoteFields = map[string]string{
	models.FieldProbability: "probability",
	models.FieldVolume:      "volume",
}

// ClickHouseQuoteStore implements QuoteStore on the polymarket_data table.
type ClickHouseQuoteStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseQuoteStore creates a market quote store.
func NewClickHouseQuoteStore(db *sql.DB, table string) repository.QuoteStore {
	return &ClickHouseQuoteStore{db: db, table: table}
}

func (s *ClickHouseQuoteStore) StoreBatch(ctx context.Context, quotes []models.MarketQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(quotes); start += chunkSize {
		end := start + chunkSize
		if end > len(quotes) {
			end = len(quotes)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, qt := range quotes[start:end] {
			if qt.MarketID == "" || qt.Timestamp.IsZero() {
				continue
			}
			scraped := qt.ScrapedAt
			if scraped.IsZero() {
				scraped = qt.Timestamp
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				qt.Timestamp,
				scraped,
				qt.EventTitle,
				qt.MarketID,
				qt.OutcomeName,
				qt.Probability,
				qt.Volume,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (timestamp, scraped_at, event_title, market_id, outcome_name, probability, volume) VALUES %s",
			s.table, strings.Join(values, ","),
		)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("quote store batch: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseQuoteStore) Range(ctx context.Context, marketID, outcome, field string, from, to time.Time) (models.Series, error) {
	col, ok := quoteFields[field]
	if !ok {
		return models.Series{}, fmt.Errorf("unknown quote field %q", field)
	}

	q := fmt.Sprintf(
		"SELECT timestamp, %s FROM %s WHERE market_id = ? AND outcome_name = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC",
		col, s.table,
	)
	rows, err := s.db.QueryContext(ctx, q, marketID, outcome, from, to)
	if err != nil {
		return models.Series{}, fmt.Errorf("quote range query: %w", err)
	}
	defer rows.Close()

	series := models.Series{ID: seriesID("market", marketID, outcome, field)}
	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.T, &p.V); err != nil {
			return models.Series{}, err
		}
		series.Points = append(series.Points, p)
	}
	return series, rows.Err()
}

func (s *ClickHouseQuoteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
