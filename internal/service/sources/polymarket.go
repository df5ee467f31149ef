package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"StormFlow/internal/domain/models"
	pkghttp "StormFlow/pkg/http"
	"StormFlow/pkg/logger"
)

const polymarketDefaultURL = "https://gamma-api.polymarket.com"

// Polymarket polls the Gamma markets API. One market yields one quote
// per outcome; outcome names and prices arrive as parallel
// JSON-encoded string arrays.
type Polymarket struct {
	baseURL string
	markets []string
	client  *pkghttp.Client
	gate    *Gate
	log     *logger.Logger
	now     func() time.Time
}

// NewPolymarket creates the Gamma REST connector for the given market
// slugs.
func NewPolymarket(baseURL string, markets []string, client *pkghttp.Client, gate *Gate, log *logger.Logger) *Polymarket {
	if baseURL == "" {
		baseURL = polymarketDefaultURL
	}
	return &Polymarket{baseURL: baseURL, markets: markets, client: client, gate: gate, log: log, now: time.Now}
}

func (p *Polymarket) Name() string { return "polymarket" }

type gammaMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	Volume        string `json:"volume"`
}

func (p *Polymarket) Fetch(ctx context.Context) ([]models.MarketQuote, int, error) {
	var out []models.MarketQuote
	dropped := 0
	for _, slug := range p.markets {
		var markets []gammaMarket
		err := p.gate.Do(ctx, func(ctx context.Context) error {
			return p.client.SendAndParse(ctx, &pkghttp.RequestOptions{
				Method:      pkghttp.MethodGet,
				URL:         p.baseURL + "/markets",
				QueryParams: map[string][]string{"slug": {slug}},
			}, &markets)
		})
		if err != nil {
			return out, dropped, fmt.Errorf("polymarket %s: %w", slug, err)
		}

		scraped := p.now().UTC()
		for _, m := range markets {
			quotes, bad := p.normalize(m, scraped)
			dropped += bad
			out = append(out, quotes...)
		}
	}
	return out, dropped, nil
}

// normalize splits one market into per-outcome quotes. Outcomes whose
// price cannot be parsed are dropped individually.
func (p *Polymarket) normalize(m gammaMarket, scraped time.Time) ([]models.MarketQuote, int) {
	var outcomes, prices []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		p.log.Warn("polymarket market dropped", logger.String("market", m.ID), logger.Error(err))
		return nil, 1
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		p.log.Warn("polymarket market dropped", logger.String("market", m.ID), logger.Error(err))
		return nil, 1
	}
	if m.ID == "" || len(outcomes) == 0 || len(outcomes) != len(prices) {
		return nil, 1
	}

	volume, _ := strconv.ParseFloat(m.Volume, 64)

	var out []models.MarketQuote
	dropped := 0
	for i, name := range outcomes {
		prob, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			dropped++
			continue
		}
		q := models.MarketQuote{
			Timestamp:   scraped,
			ScrapedAt:   scraped,
			EventTitle:  m.Question,
			MarketID:    m.ID,
			OutcomeName: name,
			Probability: prob,
			Volume:      volume,
		}
		if !validQuote(q) {
			dropped++
			continue
		}
		out = append(out, q)
	}
	return out, dropped
}
